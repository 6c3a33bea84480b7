package server

import (
	"github.com/mxcop/flow/internal/metrics"
	"github.com/mxcop/flow/internal/registry"
)

// broadcast delivers one payload to every logged-in user except the one
// at excludeAddr.
//
// Discipline: snapshot the sink handles under the registry lock, release,
// then write. The registry lock is never held across a network write, so
// a slow receiver cannot stall logins or other registry traffic. A failed
// write to one sink is logged and counted but never stops delivery to the
// rest; the failing connection's own read loop will notice and clean up.
func (s *Server) broadcast(excludeAddr string, payload []byte) {
	for _, sink := range s.registry.Sinks(excludeAddr) {
		if err := sink.Send(payload); err != nil {
			metrics.SendFailures.Inc()
			s.logger.Warn().Err(err).Msg("Broadcast write failed")
		}
	}
}

// unicast delivers one payload to a single user.
func (s *Server) unicast(user *registry.User, payload []byte) {
	if err := user.Sink.Send(payload); err != nil {
		metrics.SendFailures.Inc()
		s.logger.Warn().
			Err(err).
			Str("user_id", user.ID).
			Msg("Unicast write failed")
	}
}
