// Package ifaces holds the interfaces the pairing engine's components are
// wired together with; it exists so leaf packages can reference behaviour
// without importing implementations.
package ifaces

type Actor interface {
	Run()

	// Cancel this actor's context.
	Cancel()

	// Close is called by the actor's Run loop when cancelled.
	Close()
}
