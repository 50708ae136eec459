package pairing

import "github.com/LukaGiorgadze/gonull"

// Update is a session-state-changed notification for the presentation
// layer. Exactly one is emitted per transition, including terminal ones,
// so consumers never have to poll.
type Update struct {
	Prefix Prefix
	Role   Role
	State  State

	// PeerName is set once the remote's declared display name is known.
	PeerName gonull.Nullable[string]

	// Tier is set once a connection has been established ("direct",
	// "holepunch", "relay"); descriptive only.
	Tier gonull.Nullable[string]
}
