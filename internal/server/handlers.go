package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/mxcop/flow/internal/protocol"
	"github.com/mxcop/flow/internal/registry"
)

// Handler failure reasons. These are log-visible one-liners; the client
// never receives them (the protocol defines no error frame).
var (
	errNotAuthorized   = errors.New("User not authorized")
	errLoginTwice      = errors.New("User cannot login twice")
	errAccessDeclined  = errors.New("Access declined")
	errTargetNotFound  = errors.New("target not found")
	errOfferNotFound   = errors.New("Offer not found")
	errParticipantGone = errors.New("target or origin doesn't exist")
)

// requireUser resolves the sender to a logged-in user. Every handler
// except login goes through this gate.
func (s *Server) requireUser(c *clientConn) (*registry.User, error) {
	user, ok := s.registry.UserByAddr(c.addr)
	if !ok {
		return nil, errNotAuthorized
	}
	return user, nil
}

// handleLogin registers the sender under their claimed display name,
// hands them the roster of everyone already online, and announces the
// join to the rest.
//
// The roster snapshot is taken inside the registry's AddUser critical
// section, so a concurrent login lands either in this roster or as a
// later join broadcast — never both, never neither.
func (s *Server) handleLogin(c *clientConn, raw []byte) error {
	var req protocol.Login
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid login payload: %w", err)
	}
	if req.Name == nil {
		return errors.New("missing name field")
	}

	user, roster, err := s.registry.AddUser(c.addr, *req.Name, c.sink)
	if err != nil {
		if errors.Is(err, registry.ErrAddrInUse) {
			return errLoginTwice
		}
		return err
	}
	s.syncPresenceGauges()

	s.logger.Info().
		Str("addr", c.addr).
		Str("user_id", user.ID).
		Str("name", user.Name).
		Msg("User logged in")

	s.unicast(user, protocol.Roster(roster))
	s.broadcast(c.addr, protocol.Join(user.Info()))
	return nil
}

// handleChat relays a text message to every other logged-in user,
// stamped with the sender's identity.
func (s *Server) handleChat(c *clientConn, raw []byte) error {
	user, err := s.requireUser(c)
	if err != nil {
		return err
	}

	var req protocol.Chat
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid chat payload: %w", err)
	}
	if req.Content == nil {
		return errors.New("missing content field")
	}

	s.broadcast(c.addr, protocol.ChatRelay(user.Info(), *req.Content))
	return nil
}

// handleFile relays an opaque file payload to every other logged-in user.
func (s *Server) handleFile(c *clientConn, raw []byte) error {
	user, err := s.requireUser(c)
	if err != nil {
		return err
	}

	var req protocol.File
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid file payload: %w", err)
	}
	if req.Name == nil || req.Content == nil {
		return errors.New("missing name or content field")
	}

	s.broadcast(c.addr, protocol.FileRelay(user.Info(), *req.Name, *req.Content))
	return nil
}

// handleRequest opens a rendezvous: it records a fresh offer from the
// sender towards the target and notifies the target.
func (s *Server) handleRequest(c *clientConn, raw []byte) error {
	origin, err := s.requireUser(c)
	if err != nil {
		return err
	}

	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	if req.Target == nil {
		return errors.New("missing target field")
	}

	target, ok := s.registry.UserByID(*req.Target)
	if !ok {
		return errTargetNotFound
	}

	offer := s.registry.AddOffer(origin.ID, target.ID)
	s.syncPresenceGauges()

	s.logger.Info().
		Str("addr", c.addr).
		Str("offer_id", offer.ID).
		Str("target", target.Name).
		Msg("Rendezvous requested")

	s.unicast(target, protocol.OfferNotice(origin.ID, offer.ID))
	return nil
}

// handleOffer is the target's accept/decline answer. Only the recorded
// target may answer; both participants learn the outcome. A declined
// offer is removed, an accepted one stays until a session resolves it.
func (s *Server) handleOffer(c *clientConn, raw []byte) error {
	if _, err := s.requireUser(c); err != nil {
		return err
	}

	var req protocol.OfferReply
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid offer payload: %w", err)
	}
	if req.Accept == nil || req.ID == nil {
		return errors.New("missing accept or id field")
	}

	offer, ok := s.registry.OfferByID(*req.ID)
	if !ok {
		return errOfferNotFound
	}

	origin, okOrigin := s.registry.UserByID(offer.Origin)
	target, okTarget := s.registry.UserByID(offer.Target)
	if !okOrigin || !okTarget {
		return errParticipantGone
	}

	// The answer must come from the connection the offer was addressed
	// to; a third party guessing offer ids gets nothing.
	if target.Addr != c.addr {
		return errAccessDeclined
	}

	accepted := *req.Accept
	s.logger.Info().
		Str("addr", c.addr).
		Str("offer_id", offer.ID).
		Bool("accept", accepted).
		Msg("Offer answered")

	confirm := protocol.Confirm(accepted, offer.ID)
	s.unicast(target, confirm)
	s.unicast(origin, confirm)

	if !accepted {
		s.registry.RemoveOffer(offer.ID)
		s.syncPresenceGauges()
	}
	return nil
}

// handleSession forwards the sender's externally visible address to the
// other participant and resolves the offer.
//
// The first session claims the offer: RemoveOffer doubles as the claim,
// so when both peers send session concurrently exactly one peer frame is
// delivered and the loser fails with Offer not found. One side
// bootstraps the direct link with the other's address.
func (s *Server) handleSession(c *clientConn, raw []byte) error {
	if _, err := s.requireUser(c); err != nil {
		return err
	}

	var req protocol.Session
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid session payload: %w", err)
	}
	if req.Offer == nil || req.Port == nil {
		return errors.New("missing offer or port field")
	}
	if *req.Port < 1 || *req.Port > 65535 {
		return fmt.Errorf("invalid port %d", *req.Port)
	}

	offer, ok := s.registry.OfferByID(*req.Offer)
	if !ok {
		return errOfferNotFound
	}

	origin, okOrigin := s.registry.UserByID(offer.Origin)
	target, okTarget := s.registry.UserByID(offer.Target)
	if !okOrigin || !okTarget {
		return errParticipantGone
	}

	// Either participant may send session; anyone else is an intruder.
	var other *registry.User
	switch c.addr {
	case origin.Addr:
		other = target
	case target.Addr:
		other = origin
	default:
		return errAccessDeclined
	}

	// Claim the offer before sending. A concurrent session from the
	// other side loses the claim and is rejected here.
	if _, ok := s.registry.RemoveOffer(offer.ID); !ok {
		return errOfferNotFound
	}
	s.syncPresenceGauges()

	peerAddr := net.JoinHostPort(c.ip, strconv.Itoa(*req.Port))

	s.logger.Info().
		Str("addr", c.addr).
		Str("offer_id", offer.ID).
		Str("peer_addr", peerAddr).
		Msg("Session resolved")

	s.unicast(other, protocol.Peer(peerAddr, offer.ID))
	return nil
}
