// Package actors is the "meat and bones" of the pairsok engine;
// it runs the pairing manager, a single actor that owns every pairing
// session and mutates them from one sequential event loop.
package actors

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/edup2p/pairsok/types/ifaces"
)

type ActorCommon struct {
	inbox   chan ActorMessage
	ctx     context.Context
	ctxCan  context.CancelFunc
	running RunCheck
}

func MakeCommon(pCtx context.Context, chLen int) *ActorCommon {
	ctx, ctxCan := context.WithCancel(pCtx)

	var inbox chan ActorMessage = nil

	if chLen >= 0 {
		inbox = make(chan ActorMessage, chLen)
	}

	return &ActorCommon{
		inbox:   inbox,
		ctx:     ctx,
		ctxCan:  ctxCan,
		running: MakeRunCheck(),
	}
}

func (ac *ActorCommon) Inbox() chan<- ActorMessage {
	return ac.inbox
}

func (ac *ActorCommon) Cancel() {
	ac.ctxCan()
}

func (ac *ActorCommon) logUnknownMessage(am ActorMessage) {
	slog.Warn("actor received unknown message", "msg", fmt.Sprintf("%T", am))
}

// RunCheck ensures that only one instance of the actor is running at all times.
type RunCheck struct {
	*atomic.Bool
}

func MakeRunCheck() RunCheck {
	return RunCheck{
		&atomic.Bool{},
	}
}

// CheckOrMark atomically checks if its already running, else marks as running, returns a false value if the instance is already running.
func (rc *RunCheck) CheckOrMark() bool {
	return rc.CompareAndSwap(false, true)
}

// SendMessage is a convenience function to allow for "go SendMessage()"
func SendMessage(ch chan<- ActorMessage, msg ActorMessage) {
	ch <- msg
}

func L(a ifaces.Actor) *slog.Logger {
	return slog.With("actor", fmt.Sprintf("%T", a))
}
