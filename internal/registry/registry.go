// Package registry holds the authoritative presence and rendezvous state:
// the set of logged-in users and the set of pending P2P offers.
//
// The registry is the only shared mutable state in the server. Every
// operation takes the single registry mutex, so all mutations are
// serialized. Operations are short (map inserts and lookups); the lock is
// never held across a network write — broadcast callers snapshot the sink
// handles first and write after release.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mxcop/flow/internal/protocol"
)

// ErrAddrInUse is returned by AddUser when the remote address already has
// a logged-in user. A connection can log in at most once.
var ErrAddrInUse = errors.New("address already logged in")

// Sink is the exclusive write handle to one client's outbound stream.
// Implementations must serialize concurrent Send calls so frames from
// different senders never interleave on the wire.
type Sink interface {
	Send(payload []byte) error
}

// User is a logged-in client. The remote address is the transport key;
// the server-assigned id is the protocol key used on the wire.
type User struct {
	ID   string
	Name string
	Addr string
	Sink Sink
}

// Info returns the user's wire-visible identity.
func (u *User) Info() protocol.UserInfo {
	return protocol.UserInfo{ID: u.ID, Name: u.Name}
}

// Offer is an in-progress rendezvous between two users. Origin and Target
// are user ids that were live when the offer was created.
type Offer struct {
	ID     string
	Origin string
	Target string
}

// Registry is the process-wide user and offer store.
type Registry struct {
	mu          sync.Mutex
	usersByAddr map[string]*User
	usersByID   map[string]*User
	offers      map[string]*Offer
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		usersByAddr: make(map[string]*User),
		usersByID:   make(map[string]*User),
		offers:      make(map[string]*Offer),
	}
}

// AddUser assigns a fresh id and inserts the user, failing with
// ErrAddrInUse if the address is already logged in.
//
// The returned roster is the set of users that were present before the
// insert, captured in the same critical section. Taking the snapshot and
// inserting atomically closes the lost-join race: a user appears either
// in the newcomer's roster or as a later join broadcast, never neither
// and never both.
func (r *Registry) AddUser(addr, name string, sink Sink) (*User, []protocol.UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usersByAddr[addr]; ok {
		return nil, nil, ErrAddrInUse
	}

	roster := make([]protocol.UserInfo, 0, len(r.usersByAddr))
	for _, u := range r.usersByAddr {
		roster = append(roster, u.Info())
	}

	user := &User{
		ID:   uuid.NewString(),
		Name: name,
		Addr: addr,
		Sink: sink,
	}
	r.usersByAddr[addr] = user
	r.usersByID[user.ID] = user

	return user, roster, nil
}

// RemoveUser deletes the user for addr, if any, and purges every offer
// whose origin or target is the removed user — in one atomic step, so no
// observer can see an offer referencing a gone user.
func (r *Registry) RemoveUser(addr string) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByAddr[addr]
	if !ok {
		return nil, false
	}
	delete(r.usersByAddr, addr)
	delete(r.usersByID, user.ID)

	for id, offer := range r.offers {
		if offer.Origin == user.ID || offer.Target == user.ID {
			delete(r.offers, id)
		}
	}
	return user, true
}

// UserByAddr looks a user up by remote address.
func (r *Registry) UserByAddr(addr string) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usersByAddr[addr]
	return u, ok
}

// UserByID looks a user up by server-assigned id.
func (r *Registry) UserByID(id string) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usersByID[id]
	return u, ok
}

// Snapshot returns the identities of all logged-in users.
func (r *Registry) Snapshot() []protocol.UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]protocol.UserInfo, 0, len(r.usersByAddr))
	for _, u := range r.usersByAddr {
		users = append(users, u.Info())
	}
	return users
}

// Sinks returns the write handles of every logged-in user except the one
// at excludeAddr. The returned slice is a private copy: callers write to
// the sinks after this method has released the registry lock.
func (r *Registry) Sinks(excludeAddr string) []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinks := make([]Sink, 0, len(r.usersByAddr))
	for addr, u := range r.usersByAddr {
		if addr == excludeAddr {
			continue
		}
		sinks = append(sinks, u.Sink)
	}
	return sinks
}

// AddOffer records a new rendezvous offer between two user ids and
// assigns it a fresh id. Concurrent offers between the same pair are
// allowed; each gets its own id.
func (r *Registry) AddOffer(originID, targetID string) *Offer {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer := &Offer{
		ID:     uuid.NewString(),
		Origin: originID,
		Target: targetID,
	}
	r.offers[offer.ID] = offer
	return offer
}

// OfferByID looks an offer up by id.
func (r *Registry) OfferByID(id string) (*Offer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	return o, ok
}

// RemoveOffer deletes and returns the offer with the given id.
func (r *Registry) RemoveOffer(id string) (*Offer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, false
	}
	delete(r.offers, id)
	return o, true
}

// UserCount returns the number of logged-in users.
func (r *Registry) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.usersByAddr)
}

// OfferCount returns the number of pending offers.
func (r *Registry) OfferCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}
