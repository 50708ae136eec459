package actors

import (
	"net/netip"
	"time"

	"github.com/edup2p/pairsok/pairsok/actors/pairstate"
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/pairing"
)

// Messages

// ======================================================================================================
// Presentation-layer commands

// CmdGenerateCode creates an issuer session and, unless Local, publishes
// its rendezvous record.
type CmdGenerateCode struct {
	// TTL of the session and its record; zero means the default.
	TTL time.Duration

	// Addresses to advertise as reachability hints.
	Addresses []netip.AddrPort

	// Local skips the directory entirely; the returned record is meant to
	// be advertised over local-network discovery instead.
	Local bool

	Reply chan GenerateCodeResult
}

type GenerateCodeResult struct {
	Code   string
	Prefix pairing.Prefix

	// Record is the rendezvous record, for Local generation.
	Record directory.Record

	Err error
}

// CmdEnterCode creates a consumer session resolving a decoded share code.
type CmdEnterCode struct {
	Prefix pairing.Prefix

	Reply chan error
}

// CmdPairLocal creates a consumer session from a pre-resolved record
// supplied by local-network discovery, bypassing codec and directory.
type CmdPairLocal struct {
	Prefix pairing.Prefix
	Rec    directory.Record

	Reply chan error
}

// CmdConfirm approves the pending pairing decision on a session.
type CmdConfirm struct {
	Prefix pairing.Prefix

	Reply chan error
}

// CmdReject denies the pending pairing decision on a session.
type CmdReject struct {
	Prefix pairing.Prefix

	Reply chan error
}

// CmdCancel ends a session from any non-terminal state.
type CmdCancel struct {
	Prefix pairing.Prefix

	Reply chan error
}

// CmdGetSession requests a snapshot copy of one session, nil if unknown.
type CmdGetSession struct {
	Prefix pairing.Prefix

	Reply chan *pairing.Session
}

// CmdListSessions requests snapshot copies of all registered sessions.
type CmdListSessions struct {
	Reply chan []pairing.Session
}

// CmdTakeConn hands a confirmed session's connection over to the caller;
// nil if the session is unknown, not confirmed, or already taken.
type CmdTakeConn struct {
	Prefix pairing.Prefix

	Reply chan ifaces.Conn
}

// ======================================================================================================
// Async task completions

// TaskDone re-enters the loop with the completion of a dispatched task.
type TaskDone struct {
	Prefix pairing.Prefix

	Res pairstate.TaskResult
}

// ======================================================================================================
// Inbound network events

// InboundPacket is the first frame read off an accepted connection.
type InboundPacket struct {
	Conn ifaces.Conn

	Pkt []byte
}
