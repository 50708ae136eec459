package actors

import (
	"time"

	"github.com/edup2p/pairsok/pairsok/actors/pairstate"
	"github.com/edup2p/pairsok/types"
	"github.com/edup2p/pairsok/types/pairing"
	"golang.org/x/exp/maps"
)

// SessionRegistry holds every live (and recently terminal) pairing session,
// keyed by token prefix.
//
// It carries no lock; only the pairing manager's event loop touches it.
type SessionRegistry struct {
	sessions map[pairing.Prefix]pairstate.PairState

	gracePeriod time.Duration
}

func NewSessionRegistry(gracePeriod time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[pairing.Prefix]pairstate.PairState),
		gracePeriod: gracePeriod,
	}
}

// Register adds a session state under its prefix.
//
// A second live session for the same prefix is refused with
// ErrDuplicateToken; a lingering terminal one is evicted to make room.
func (r *SessionRegistry) Register(st pairstate.PairState) error {
	prefix := st.Session().Prefix

	if cur, ok := r.sessions[prefix]; ok {
		if !cur.Session().State.Terminal() {
			return pairing.ErrDuplicateToken
		}

		delete(r.sessions, prefix)
	}

	r.sessions[prefix] = st

	return nil
}

// Get returns the state registered under prefix, or nil.
func (r *SessionRegistry) Get(prefix pairing.Prefix) pairstate.PairState {
	return r.sessions[prefix]
}

// SetState swaps the state registered under st's prefix for st. Used after a
// handler returned a transition.
func (r *SessionRegistry) SetState(st pairstate.PairState) {
	r.sessions[st.Session().Prefix] = st
}

// Remove drops the session under prefix outright.
func (r *SessionRegistry) Remove(prefix pairing.Prefix) {
	delete(r.sessions, prefix)
}

// Len returns the number of registered sessions, live and lingering.
func (r *SessionRegistry) Len() int {
	return len(r.sessions)
}

// Sweep walks all sessions at now, and returns:
//   - expired: live sessions past their deadline, for the manager to finalise
//   - evicted: terminal sessions past their grace period, already removed
func (r *SessionRegistry) Sweep(now time.Time) (expired []pairstate.PairState, evicted []*pairing.Session) {
	for prefix, st := range r.sessions {
		sess := st.Session()

		if sess.State.Terminal() {
			if now.After(sess.TerminalAt.Add(r.gracePeriod)) {
				delete(r.sessions, prefix)
				evicted = append(evicted, sess)
			}

			continue
		}

		if sess.Expired(now) {
			expired = append(expired, st)
		}
	}

	return expired, evicted
}

// Snapshot returns value copies of every registered session.
func (r *SessionRegistry) Snapshot() []pairing.Session {
	return types.Map(maps.Values(r.sessions), func(st pairstate.PairState) pairing.Session {
		return *st.Session()
	})
}
