package pairstate

import (
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// Terminal covers all final states. It ignores everything; the session
// lingers in the registry for a grace period so late duplicate messages die
// against a known session instead of a "not found" ambiguity, and then the
// sweep forgets it.
type Terminal struct {
	*StateCommon
}

// MakeTerminal moves the session into a final state and records the reason.
// Panics if state is not terminal; that's a programming error.
func MakeTerminal(sc *StateCommon, state pairing.State, reason error) PairState {
	if !state.Terminal() {
		panic("MakeTerminal called with non-terminal state " + state.String())
	}

	sc.sess.State = state
	sc.sess.Reason = reason
	sc.sess.TerminalAt = time.Now()
	sc.sess.NextGen()

	t := &Terminal{StateCommon: sc}
	L(t).Info("finalised", "reason", reason)

	return t
}

func (t *Terminal) Name() string {
	return t.sess.State.String()
}

func (t *Terminal) OnTask(res TaskResult) PairState {
	L(t).Debug("dropping task result in terminal state", "result", res)
	return nil
}

func (t *Terminal) OnMessage(clear *msgpair.ClearMessage, _ ifaces.Conn) PairState {
	LogMessage(t, clear)
	L(t).Debug("dropping handshake message in terminal state")
	return nil
}

func (t *Terminal) OnCommand(cmd Command) PairState {
	L(t).Debug("dropping command in terminal state", "cmd", cmd.String())
	return nil
}
