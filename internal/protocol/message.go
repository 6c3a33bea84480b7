// Package protocol defines the JSON wire format exchanged with clients.
//
// Every frame in either direction is a single WebSocket text frame holding
// one JSON object with a required "type" field. Inbound frames are decoded
// into per-type structs; pointer fields distinguish a missing field from a
// zero value so handlers can reject incomplete frames precisely.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client-to-server message types.
const (
	TypeLogin   = "login"
	TypeChat    = "chat"
	TypeFile    = "file"
	TypeRequest = "request"
	TypeOffer   = "offer"
	TypeSession = "session"
)

// Server-to-client message types.
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeConfirm = "confirm"
	TypePeer    = "peer"
)

var (
	// ErrMissingType marks a frame whose top-level "type" field is absent
	// or not a string.
	ErrMissingType = errors.New("missing type field")
)

// Envelope carries only the routing field of an inbound frame. The full
// payload is decoded a second time by the matching handler.
type Envelope struct {
	Type string `json:"type"`
}

// ParseEnvelope decodes the routing envelope of a raw text frame.
// A frame that is not a JSON object, or whose "type" is missing or not a
// string, is rejected here before any handler runs.
func ParseEnvelope(raw []byte) (Envelope, error) {
	// First pass: make sure "type" exists and is a string. Decoding into
	// map[string]json.RawMessage keeps wrong-typed "type" values (numbers,
	// objects) distinguishable from plain JSON syntax errors.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, fmt.Errorf("invalid JSON: %w", err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Envelope{}, ErrMissingType
	}

	var env Envelope
	if err := json.Unmarshal(rawType, &env.Type); err != nil {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Login is the first frame a client must send. The name is the claimed
// display name; there is no further authentication.
type Login struct {
	Name *string `json:"name"`
}

// Chat relays a text message to every other logged-in user.
type Chat struct {
	Content *string `json:"content"`
}

// File relays an opaque payload (typically base64 file bytes) plus a file
// name to every other logged-in user.
type File struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// Request initiates a P2P rendezvous with the user identified by Target.
type Request struct {
	Target *string `json:"target"`
}

// OfferReply is the target's accept/decline answer to a pending offer.
type OfferReply struct {
	Accept *bool   `json:"accept"`
	ID     *string `json:"id"`
}

// Session carries one peer's externally visible hole-punched port after a
// confirmed offer.
type Session struct {
	Offer *string `json:"offer"`
	Port  *int    `json:"port"`
}

// UserInfo is the public identity of a logged-in user as seen on the wire.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Roster is sent once to a freshly logged-in user and lists everyone who
// was already online (the new user itself is excluded).
func Roster(users []UserInfo) []byte {
	if users == nil {
		users = []UserInfo{}
	}
	return marshal(struct {
		Type  string     `json:"type"`
		Users []UserInfo `json:"users"`
	}{TypeLogin, users})
}

// Join announces a new user to everyone else.
func Join(user UserInfo) []byte {
	return marshal(struct {
		Type string   `json:"type"`
		User UserInfo `json:"user"`
	}{TypeJoin, user})
}

// Leave announces a disconnected user to everyone else.
func Leave(user UserInfo) []byte {
	return marshal(struct {
		Type string   `json:"type"`
		User UserInfo `json:"user"`
	}{TypeLeave, user})
}

// ChatRelay is the broadcast form of a chat message, stamped with the
// sender's identity.
func ChatRelay(sender UserInfo, content string) []byte {
	return marshal(struct {
		Type    string   `json:"type"`
		Sender  UserInfo `json:"sender"`
		Content string   `json:"content"`
	}{TypeChat, sender, content})
}

// FileRelay is the broadcast form of a file message.
func FileRelay(sender UserInfo, name, content string) []byte {
	return marshal(struct {
		Type    string   `json:"type"`
		Sender  UserInfo `json:"sender"`
		Name    string   `json:"name"`
		Content string   `json:"content"`
	}{TypeFile, sender, name, content})
}

// OfferNotice tells the target of a request that a rendezvous offer is
// waiting for them.
func OfferNotice(originID, offerID string) []byte {
	return marshal(struct {
		Type   string `json:"type"`
		Origin string `json:"origin"`
		ID     string `json:"id"`
	}{TypeOffer, originID, offerID})
}

// Confirm reports the target's accept/decline decision to both
// participants of an offer.
func Confirm(accept bool, offerID string) []byte {
	return marshal(struct {
		Type   string `json:"type"`
		Accept bool   `json:"accept"`
		Offer  string `json:"offer"`
	}{TypeConfirm, accept, offerID})
}

// Peer hands one participant the other side's externally visible address.
func Peer(addr, offerID string) []byte {
	return marshal(struct {
		Type  string `json:"type"`
		Addr  string `json:"addr"`
		Offer string `json:"offer"`
	}{TypePeer, addr, offerID})
}

// marshal encodes an outbound frame. All outbound types are flat structs
// of strings and bools, so encoding cannot fail at runtime.
func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return data
}
