package pairstate

import (
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// This state pattern was inspired by https://refactoring.guru/design-patterns/state/go/example

// PairState defines an interface with which a pairing session's state can
// be driven.
//
// The PairState return value is effectively a nullable; if its nil, then
// keep the current state. If it's non-nil, replace the session's state with
// the state returned.
//
// All handlers run on the pairing manager's single event loop; a handler is
// atomic with respect to every other transition.
type PairState interface {
	// OnTask delivers the completion of an async task this state dispatched.
	// The manager has already filtered stale generations.
	OnTask(res TaskResult) PairState

	// OnMessage delivers an inbound handshake message for this session's
	// token, together with the connection it arrived on.
	OnMessage(clear *msgpair.ClearMessage, conn ifaces.Conn) PairState

	// OnCommand delivers a local user decision.
	OnCommand(cmd Command) PairState

	// Name returns a lower-case name to be used in logging.
	Name() string

	// Session returns the session this state is being managed for.
	Session() *pairing.Session

	// Common exposes the shared state core, so the manager can force
	// transitions (cancel, expiry) from outside the handlers.
	Common() *StateCommon
}

// Command is a local user decision routed into the state machine.
type Command uint8

const (
	CommandConfirm Command = iota
	CommandReject
)

func (c Command) String() string {
	switch c {
	case CommandConfirm:
		return "confirm"
	case CommandReject:
		return "reject"
	default:
		return "unknown"
	}
}

// TaskResult is the completion of one dispatched async task, tagged with
// the session generation it was started under.
type TaskResult interface {
	ResultGen() uint64
}

// PublishResult completes a directory publish (with internal retries).
type PublishResult struct {
	Gen uint64
	Err error
}

func (r PublishResult) ResultGen() uint64 { return r.Gen }

// ResolveResult completes a directory resolve (with internal backoff).
type ResolveResult struct {
	Gen uint64
	Rec directory.Record
	Err error
}

func (r ResolveResult) ResultGen() uint64 { return r.Gen }

// ConnectResult completes connection establishment.
type ConnectResult struct {
	Gen  uint64
	Conn ifaces.Conn
	Err  error
}

func (r ConnectResult) ResultGen() uint64 { return r.Gen }

// HandshakeResult completes the consumer's request/response exchange.
type HandshakeResult struct {
	Gen  uint64
	Resp *msgpair.Response
	Err  error
}

func (r HandshakeResult) ResultGen() uint64 { return r.Gen }

// SendResult completes the issuer's response send.
type SendResult struct {
	Gen uint64
	Err error
}

func (r SendResult) ResultGen() uint64 { return r.Gen }
