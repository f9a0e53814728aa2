package fortune

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Teller draws fortunes uniformly at random from a fixed candidate list.
type Teller struct {
	candidates []string

	mu   sync.Mutex
	rng  *rand.Rand
	now  func() time.Time
	last time.Time
}

// TellerOption configures a Teller
type TellerOption func(*Teller)

// WithRandom injects the random source. Tests use a seeded source.
func WithRandom(rng *rand.Rand) TellerOption {
	return func(t *Teller) {
		if rng != nil {
			t.rng = rng
		}
	}
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) TellerOption {
	return func(t *Teller) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTeller creates a teller over candidates. Candidates must be non-empty
// and must not contain blank entries.
func NewTeller(candidates []string, opts ...TellerOption) (*Teller, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	for i, c := range candidates {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("%w: candidate %d is blank", ErrNoCandidates, i)
		}
	}

	t := &Teller{
		candidates: append([]string(nil), candidates...),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tell draws a fortune. IssuedAt never goes backwards across sequential calls.
func (t *Teller) Tell() (Fortune, error) {
	if t == nil || len(t.candidates) == 0 {
		return Fortune{}, &Error{Kind: KindServerFault, Message: "teller has no candidates"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	issued := t.now()
	if issued.Before(t.last) {
		issued = t.last
	}
	t.last = issued

	return Fortune{
		Text:     t.candidates[t.rng.Intn(len(t.candidates))],
		IssuedAt: issued,
	}, nil
}

// Candidates returns a copy of the candidate list.
func (t *Teller) Candidates() []string {
	return append([]string(nil), t.candidates...)
}

// Contains reports whether text is one of the candidates.
func (t *Teller) Contains(text string) bool {
	for _, c := range t.candidates {
		if c == text {
			return true
		}
	}
	return false
}
