package pairing

import (
	"errors"
	"time"

	"github.com/edup2p/pairsok/types/key"
)

// Role says which side of a pairing attempt this device is on.
type Role uint8

const (
	// RoleIssuer generated the code and published the rendezvous record.
	RoleIssuer Role = iota
	// RoleConsumer entered the code and resolves the record.
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleIssuer:
		return "issuer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// State is where a session currently is in its lifecycle.
type State uint8

const (
	StateIdle State = iota
	StatePublishing
	StateAwaitingPeer
	StateConnecting
	StateHandshaking
	StateAwaitingConfirmation
	StateConfirmed
	StateRejected
	StateExpired
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePublishing:
		return "publishing"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is final; terminal sessions accept no further
// transitions and are evicted by the registry sweep after a grace period.
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateRejected, StateExpired, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrDuplicateToken is returned when registering a second live session
	// for the same token prefix on one device.
	ErrDuplicateToken = errors.New("duplicate session token")

	// ErrCancelled is the failure reason of sessions ended by explicit user action.
	ErrCancelled = errors.New("session cancelled")

	// ErrExpired is the failure reason of sessions reaped by the expiry sweep.
	ErrExpired = errors.New("session expired")
)

// Session is the record of one pairing attempt. It is created on code
// generation or code entry, owned exclusively by the registry, and mutated
// only from the pairing manager's event loop.
type Session struct {
	Token  Token
	Prefix Prefix
	Role   Role
	State  State

	// Gen tags async task completions; completions carrying a stale
	// generation are dropped instead of acted on.
	Gen uint64

	// SessKey is this side's ephemeral handshake keypair.
	SessKey key.SessionPrivate

	// Nonce is the request nonce a consumer sent (or an issuer received),
	// which the response must echo.
	Nonce [16]byte

	Peer     key.DevicePublic
	PeerName string

	// ConnTier is the tier the established connection ended up on, for
	// surfacing upward; empty before establishment.
	ConnTier string

	CreatedAt time.Time
	ExpiresAt time.Time

	// TerminalAt is when the session entered a terminal state; zero before.
	TerminalAt time.Time

	// Reason records why a session failed/ended, for surfacing upward.
	Reason error

	// Unpublished guards the issuer's exactly-once directory unpublish.
	Unpublished bool
}

// Expired reports whether the session's deadline has passed at now.
//
// The registry sweep owns expiry; handshake completions check it too, so a
// late result never lands a confirmation.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NextGen invalidates all in-flight async work for this session.
func (s *Session) NextGen() uint64 {
	s.Gen++
	return s.Gen
}
