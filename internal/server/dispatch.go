package server

import (
	"errors"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mxcop/flow/internal/metrics"
	"github.com/mxcop/flow/internal/protocol"
)

// readLoop reads text frames sequentially until the client goes away.
// Frames on one connection are processed in receipt order; a handler runs
// to completion before the next frame is read. All recoverable errors are
// per-frame: they are logged under the sender and the loop continues.
func (s *Server) readLoop(c *clientConn) {
	for {
		msg, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			// Read error, EOF, or peer close. The caller synthesizes the
			// disconnect.
			return
		}

		if op != ws.OpText || len(msg) == 0 {
			continue
		}

		metrics.FramesReceived.Inc()
		s.dispatch(c, msg)
	}
}

// dispatch parses the routing envelope and hands the frame to the
// matching handler. Handler failures never reach the client: the protocol
// has no error frame, so a one-line reason goes to the server log only.
func (s *Server) dispatch(c *clientConn, raw []byte) {
	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrMissingType) {
			s.rejectFrame(c, metrics.KindSchema, "Invalid (Missing type)")
		} else {
			s.rejectFrame(c, metrics.KindParse, "Invalid (Needs to be JSON)")
		}
		return
	}

	switch env.Type {
	case protocol.TypeLogin:
		err = s.handleLogin(c, raw)
	case protocol.TypeChat:
		err = s.handleChat(c, raw)
	case protocol.TypeFile:
		err = s.handleFile(c, raw)
	case protocol.TypeRequest:
		err = s.handleRequest(c, raw)
	case protocol.TypeOffer:
		err = s.handleOffer(c, raw)
	case protocol.TypeSession:
		err = s.handleSession(c, raw)
	default:
		s.rejectFrame(c, metrics.KindUnknown, "Unknown type "+env.Type)
		return
	}

	if err != nil {
		s.rejectFrame(c, rejectKind(err), strings.ToUpper(env.Type)+" -> "+err.Error())
	}
}

// rejectFrame logs a per-frame failure under the sender and counts it.
func (s *Server) rejectFrame(c *clientConn, kind, reason string) {
	metrics.FramesRejected.WithLabelValues(kind).Inc()
	s.logger.Warn().
		Str("addr", c.addr).
		Str("kind", kind).
		Msg(reason)
}

// rejectKind maps a handler error onto the error taxonomy for metrics.
func rejectKind(err error) string {
	switch {
	case errors.Is(err, errNotAuthorized), errors.Is(err, errAccessDeclined):
		return metrics.KindAuth
	case errors.Is(err, errTargetNotFound), errors.Is(err, errOfferNotFound), errors.Is(err, errParticipantGone):
		return metrics.KindNotFound
	case errors.Is(err, errLoginTwice):
		return metrics.KindState
	default:
		return metrics.KindSchema
	}
}
