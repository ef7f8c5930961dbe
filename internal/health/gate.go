package health

import (
	"sync/atomic"

	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// ShutdownGate closes readiness while the process drains. The zero value
// is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate. An empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

// Err is nil while the gate is open, otherwise an error carrying the reason.
// A nil gate is always open.
func (g *ShutdownGate) Err() error {
	if g == nil {
		return nil
	}
	if r := g.reason.Load(); r != nil {
		return xerrors.New(*r)
	}
	return nil
}
