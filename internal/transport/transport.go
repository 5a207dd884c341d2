// Package transport defines the boundary to the external messaging service.
// The wire protocol is opaque to the rest of the system: a Client is an event
// source plus a handful of outbound actions, and every notification it emits
// is one of the internal event types below. Nothing downstream inspects raw
// payload shapes.
package transport

import (
	"context"
	"strings"
)

// CloseClass classifies why a connection ended. The state machine's reconnect
// policy is keyed on this class.
type CloseClass string

const (
	// CloseTransient covers network blips, timeouts and stream errors that
	// a reconnect with the same credentials can heal.
	CloseTransient CloseClass = "transient"
	// CloseRestartRequired is the distinguished post-pairing closure: the
	// server completed pairing and wants the socket renegotiated now.
	CloseRestartRequired CloseClass = "restart_required"
	// CloseLoggedOut is terminal: credentials were revoked or the account
	// logged the device out. No reconnect is possible.
	CloseLoggedOut CloseClass = "logged_out"
)

// BaseID returns the identifier's base segment: everything before the first
// device separator or server suffix.
func BaseID(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return id
}

// Identity is the session's own bound identity: the full device identifier
// plus its privacy-preserving alias, when the service has assigned one.
type Identity struct {
	JID string
	LID string
}

// Matches reports whether raw refers to this identity, comparing by full
// identifier, by alias, and by base segment. Participant-change events may
// carry any of the three forms.
func (id Identity) Matches(raw string) bool {
	if raw == "" || id.JID == "" {
		return false
	}
	if raw == id.JID || (id.LID != "" && raw == id.LID) {
		return true
	}
	base := BaseID(raw)
	if base == "" {
		return false
	}
	if base == BaseID(id.JID) {
		return true
	}
	return id.LID != "" && base == BaseID(id.LID)
}

type Participant struct {
	JID         string
	LID         string
	DisplayName string
	IsAdmin     bool
}

type GroupInfo struct {
	JID          string
	Name         string
	Participants []Participant
}

// Event is the tagged union of transport notifications.
type Event interface {
	event()
}

// QRCode carries one credential artifact. Emitted repeatedly while the
// session awaits pairing.
type QRCode struct {
	Code string
}

// PairSuccess signals that the operator completed pairing. The transport
// will typically close with CloseRestartRequired immediately after.
type PairSuccess struct {
	Self Identity
}

// Connected signals that the socket is open and authenticated.
type Connected struct {
	Self Identity
}

// Closed signals that the connection ended.
type Closed struct {
	Class CloseClass
	Note  string
}

// GroupJoined signals that the session became a participant of a group.
type GroupJoined struct {
	Info GroupInfo
}

// ParticipantChange is a single membership delta. Left holds identifiers
// that left or were removed; the bridge attributes removals by comparing
// each against Actor.
type ParticipantChange struct {
	GroupJID string
	Actor    string
	Joined   []string
	Left     []string
}

func (QRCode) event()            {}
func (PairSuccess) event()       {}
func (Connected) event()         {}
func (Closed) event()            {}
func (GroupJoined) event()       {}
func (ParticipantChange) event() {}

// Client is one live connection to the messaging service. Connect starts the
// event stream; the channel returned by Events is closed when the connection
// is torn down, after a final Closed event where the transport can produce
// one.
type Client interface {
	Connect(ctx context.Context) error
	Events() <-chan Event
	Self() Identity
	// RequestPairingCode asks the service for a one-time pairing code bound
	// to the given phone number. Valid once per connection attempt, after
	// the transport has signaled readiness via its first QRCode event.
	RequestPairingCode(ctx context.Context, phoneNumber string) (string, error)
	ListGroups(ctx context.Context) ([]GroupInfo, error)
	GroupMetadata(ctx context.Context, groupJID string) (*GroupInfo, error)
	Logout(ctx context.Context) error
	Close()
}

// Dialer opens clients for bots, reusing persisted credentials between
// connection attempts.
type Dialer interface {
	Dial(ctx context.Context, botID int64) (Client, error)
	PurgeCredentials(ctx context.Context, botID int64) error
}
