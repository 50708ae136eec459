package pairstate

import (
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// Publishing is the issuer's first state: the rendezvous record is on its
// way to the directory, with retries handled inside the publish task.
type Publishing struct {
	*StateCommon
}

func MakePublishing(man ifaces.PairManagerActor, sess *pairing.Session) PairState {
	sess.State = pairing.StatePublishing

	p := &Publishing{
		StateCommon: &StateCommon{man: man, sess: sess},
	}
	L(p).Info("initialised")

	return p
}

func (p *Publishing) Name() string {
	return "publishing"
}

func (p *Publishing) OnTask(res TaskResult) PairState {
	pub, ok := res.(PublishResult)
	if !ok {
		L(p).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	if pub.Err != nil {
		return LogTransition(p, MakeTerminal(p.StateCommon, pairing.StateFailed, pub.Err))
	}

	return LogTransition(p, MakeAwaitingPeer(p.StateCommon))
}

func (p *Publishing) OnMessage(clear *msgpair.ClearMessage, conn ifaces.Conn) PairState {
	// A peer found us before we saw our own publish confirmation; the
	// record is evidently out there, handle the request as awaiting-peer.
	next := MakeAwaitingPeer(p.StateCommon)

	if s := next.OnMessage(clear, conn); s != nil {
		return LogTransition(p, s)
	}

	return LogTransition(p, next)
}

func (p *Publishing) OnCommand(cmd Command) PairState {
	L(p).Warn("ignoring command", "cmd", cmd.String())
	return nil
}
