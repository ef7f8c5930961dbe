package probe

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// ErrInvalidConfiguration marks probe errors caused by bad configuration.
// They are not retried and abort the evaluation.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Chance reports success with probability p percent. p must be within
// [0,100]: 0 never succeeds, 100 always does. A nil r uses the global source.
func Chance(p float64, r *rand.Rand) (bool, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return false, xerrors.Wrapf(ErrInvalidConfiguration, "probability %v must be between 0 and 100 inclusive", p)
	}
	var f float64
	if r != nil {
		f = r.Float64()
	} else {
		f = rand.Float64()
	}
	return f*100 < p, nil
}

// Simulated is a mock dependency that is up Uptime percent of the time.
// With simulation disabled it is always up and Uptime is not validated.
type Simulated struct {
	enabled bool
	uptime  float64

	mu  sync.Mutex
	rng *rand.Rand
}

type SimulatedOption func(*Simulated)

// WithSeed makes the outcome sequence deterministic.
func WithSeed(seed uint64) SimulatedOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func NewSimulated(enabled bool, uptime float64, opts ...SimulatedOption) *Simulated {
	s := &Simulated{enabled: enabled, uptime: uptime}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulated) Check(ctx context.Context, name string) (Result, error) {
	return Timed(s.roll).Check(ctx, name)
}

func (s *Simulated) roll(context.Context) (bool, error) {
	if !s.enabled {
		return true, nil
	}
	if s.rng == nil {
		return Chance(s.uptime, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Chance(s.uptime, s.rng)
}
