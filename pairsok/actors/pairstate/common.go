package pairstate

import (
	"context"
	"log/slog"
	"time"

	"github.com/edup2p/pairsok/types"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

type StateCommon struct {
	man  ifaces.PairManagerActor
	sess *pairing.Session
}

func (sc *StateCommon) Session() *pairing.Session {
	return sc.sess
}

func (sc *StateCommon) Common() *StateCommon {
	return sc
}

// requestValid checks an inbound request against the session it claims to
// belong to. Which check failed is never surfaced; the single rejection
// path avoids oracle leaks.
func (sc *StateCommon) requestValid(clear *msgpair.ClearMessage, req *msgpair.Request, now time.Time) bool {
	if clear.Prefix != sc.sess.Prefix || req.Prefix != sc.sess.Prefix {
		return false
	}

	// Expiry is carried in the message itself, so a handshake completing
	// after expiry fails on the receiving side's own clock.
	if now.After(req.Deadline) || sc.sess.Expired(now) {
		return false
	}

	return true
}

// L stands for Log
func L(s PairState) *slog.Logger {
	return slog.With(
		"prefix", s.Session().Prefix.Debug(),
		"role", s.Session().Role.String(),
		"state", s.Name(),
	)
}

func LogTransition(from, to PairState) PairState {
	L(from).Log(context.Background(), types.LevelTrace, "transitioning state", "to-state", to.Name())

	return to
}

func LogMessage(s PairState, clear *msgpair.ClearMessage) {
	L(s).Log(context.Background(), types.LevelTrace, "received handshake message",
		slog.Group("from",
			"prefix", clear.Prefix.Debug(),
			"session", clear.Session.Debug()),
		"msg", clear.Message.Debug(),
	)
}
