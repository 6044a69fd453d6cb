package tracking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sync"
)

const (
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	prefix      = "TRK-"
	firstLength = 8
	lastLength  = 5
)

var pattern = regexp.MustCompile(`^TRK-[A-Z0-9]{8}-[A-Z0-9]{5}$`)

// ErrExhausted is returned when no fresh id was found within the attempt budget.
var ErrExhausted = errors.New("tracking id attempts exhausted")

// Guarantee selects how strongly ids are kept unique.
type Guarantee string

const (
	// GuaranteeProbabilistic draws without bookkeeping.
	GuaranteeProbabilistic Guarantee = "probabilistic"
	// GuaranteeRun remembers every id the allocator handed out and redraws
	// repeats. The set lives as long as the allocator: about 25 bytes per id,
	// so roughly 130 MB for the 5.4M ids of the default layout. Use
	// probabilistic with Resolve, or one allocator per seeding run, when that
	// is too much.
	GuaranteeRun Guarantee = "run"
	// GuaranteePersisted is run plus a Resolve check against stored ids.
	GuaranteePersisted Guarantee = "persisted"
)

// ParseGuarantee validates a guarantee name.
func ParseGuarantee(s string) (Guarantee, error) {
	switch g := Guarantee(s); g {
	case GuaranteeProbabilistic, GuaranteeRun, GuaranteePersisted:
		return g, nil
	case "":
		return GuaranteeRun, nil
	default:
		return "", fmt.Errorf("unknown tracking guarantee: %s", s)
	}
}

// Checker reports which of the given ids already exist in persistent storage.
type Checker interface {
	ExistingTrackingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// Valid reports whether id has the tracking id format.
func Valid(id string) bool {
	return pattern.MatchString(id)
}

// Allocator hands out tracking ids. It is safe for concurrent use.
type Allocator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	guarantee   Guarantee
	checker     Checker
	maxAttempts int
	seen        map[seenKey]struct{}
}

// seenKey is the random part of an id. The prefix and dash are constant.
type seenKey [firstLength + lastLength]byte

func keyOf(id string) seenKey {
	var k seenKey
	copy(k[:firstLength], id[len(prefix):len(prefix)+firstLength])
	copy(k[firstLength:], id[len(prefix)+firstLength+1:])
	return k
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(a *Allocator) { a.rng = rng }
}

// WithGuarantee sets the uniqueness level.
func WithGuarantee(g Guarantee) Option {
	return func(a *Allocator) { a.guarantee = g }
}

// WithChecker sets the persisted-state checker used by Resolve.
func WithChecker(c Checker) Option {
	return func(a *Allocator) { a.checker = c }
}

// WithMaxAttempts bounds redraws per id.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) { a.maxAttempts = n }
}

// NewAllocator creates an allocator. The default guarantee is run.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		guarantee:   GuaranteeRun,
		maxAttempts: 16,
		seen:        make(map[seenKey]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Tracked returns how many ids the run guarantee is holding.
func (a *Allocator) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Guarantee returns the configured level.
func (a *Allocator) Guarantee() Guarantee { return a.guarantee }

// New returns a fresh id. Under the probabilistic guarantee it never fails.
func (a *Allocator) New() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next()
}

// MustNew is New for the probabilistic and run guarantees, where exhaustion
// needs more draws than the id space makes plausible.
func (a *Allocator) MustNew() string {
	id, err := a.New()
	if err != nil {
		panic(err)
	}
	return id
}

func (a *Allocator) next() (string, error) {
	if a.guarantee == GuaranteeProbabilistic {
		return a.draw(), nil
	}
	for range a.maxAttempts {
		id := a.draw()
		k := keyOf(id)
		if _, dup := a.seen[k]; dup {
			continue
		}
		a.seen[k] = struct{}{}
		return id, nil
	}
	return "", ErrExhausted
}

func (a *Allocator) draw() string {
	buf := make([]byte, 0, len(prefix)+firstLength+1+lastLength)
	buf = append(buf, prefix...)
	for range firstLength {
		buf = append(buf, alphabet[a.rng.IntN(len(alphabet))])
	}
	buf = append(buf, '-')
	for range lastLength {
		buf = append(buf, alphabet[a.rng.IntN(len(alphabet))])
	}
	return string(buf)
}

// Resolve replaces ids that already exist in persistent storage with fresh
// ones. It only does work under the persisted guarantee with a checker set.
// ids is modified in place.
func (a *Allocator) Resolve(ctx context.Context, ids []string) error {
	if a.guarantee != GuaranteePersisted || a.checker == nil || len(ids) == 0 {
		return nil
	}

	pending := make([]int, len(ids))
	for i := range ids {
		pending[i] = i
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		batch := make([]string, len(pending))
		for j, i := range pending {
			batch[j] = ids[i]
		}
		existing, err := a.checker.ExistingTrackingIDs(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to check tracking ids: %w", err)
		}

		var collided []int
		for _, i := range pending {
			if _, taken := existing[ids[i]]; taken {
				collided = append(collided, i)
			}
		}
		if len(collided) == 0 {
			return nil
		}

		a.mu.Lock()
		for _, i := range collided {
			id, err := a.next()
			if err != nil {
				a.mu.Unlock()
				return err
			}
			ids[i] = id
		}
		a.mu.Unlock()
		pending = collided
	}
	return ErrExhausted
}
