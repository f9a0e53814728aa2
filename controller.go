package fortune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxFortuneBody bounds how much of a response body is decoded.
const maxFortuneBody = 64 << 10

// Fetcher performs HTTP requests. The controller expects a payment-aware
// implementation that resolves 402 challenges transparently; *http.Client
// satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// SettlementExtractor reads the settlement receipt from response headers.
type SettlementExtractor interface {
	Settlement(header http.Header) (Settlement, error)
}

// Controller drives a single "get a fortune" request at a time through the
// payment precondition and publishes every state change to subscribers.
type Controller struct {
	url       string
	fetcher   Fetcher
	extractor SettlementExtractor
	log       logrus.FieldLogger
	timeout   time.Duration

	mu      sync.Mutex
	snap    Snapshot
	gen     uint64
	subs    map[int]func(Snapshot)
	nextSub int
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithFetcher sets the payment-aware transport. Without one every request
// fails with NotConfigured.
func WithFetcher(f Fetcher) ControllerOption {
	return func(c *Controller) {
		c.fetcher = f
	}
}

// WithSettlementExtractor sets the receipt extractor.
func WithSettlementExtractor(e SettlementExtractor) ControllerOption {
	return func(c *Controller) {
		c.extractor = e
	}
}

// WithLogger sets the controller logger
func WithLogger(log logrus.FieldLogger) ControllerOption {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout bounds each request. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.timeout = d
	}
}

// NewController creates a controller fetching fortunes from resourceURL.
func NewController(resourceURL string, opts ...ControllerOption) *Controller {
	c := &Controller{
		url:  resourceURL,
		log:  logrus.StandardLogger(),
		subs: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "controller")
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Busy reports whether a request is outstanding.
func (c *Controller) Busy() bool {
	return c.Snapshot().Busy()
}

// Configured reports whether a payment-aware transport is set.
func (c *Controller) Configured() bool {
	return c.fetcher != nil
}

// Subscribe registers fn for every state change. Callbacks run synchronously
// on the goroutine that caused the change, after the controller lock is
// released. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// RequestFortune fetches one fortune and returns the settled snapshot. It
// never returns an error: every failure is reported as a Failed snapshot.
// While a request is outstanding further calls return the current snapshot
// without touching the network.
func (c *Controller) RequestFortune(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.snap.Busy() {
		current := c.snap
		c.mu.Unlock()
		c.log.Debug("fortune request already in flight, ignoring")
		return current
	}
	if c.fetcher == nil {
		next := c.snap.fail(&Error{Kind: KindNotConfigured, Message: ErrNotConfigured.Message})
		c.commitLocked(next)
		return next
	}
	c.gen++
	gen := c.gen
	c.commitLocked(c.snap.begin())

	log := c.log.WithField("url", c.url)
	log.Debug("requesting fortune")

	resp, settlement, ferr := c.fetch(ctx, gen)

	c.mu.Lock()
	var next Snapshot
	if ferr != nil {
		next = c.snap.fail(ferr)
	} else {
		next = c.snap.reveal(resp, settlement)
	}
	c.commitLocked(next)

	if ferr != nil {
		log.WithField("kind", ferr.Kind).WithError(ferr).Warn("fortune request failed")
	} else {
		log.WithField("transaction", next.Transaction).Info("fortune revealed")
	}
	return next
}

// commitLocked stores next, releases the lock and notifies subscribers.
func (c *Controller) commitLocked(next Snapshot) {
	c.snap = next
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// transition applies fn to the snapshot of request gen, if it is still in flight.
func (c *Controller) transition(gen uint64, fn func(Snapshot) Snapshot) {
	c.mu.Lock()
	if gen != c.gen || !c.snap.Busy() {
		c.mu.Unlock()
		return
	}
	next := fn(c.snap)
	if next == c.snap {
		c.mu.Unlock()
		return
	}
	c.commitLocked(next)
}

func (c *Controller) fetch(ctx context.Context, gen uint64) (FortuneResponse, *Settlement, *Error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = WithPaymentObserver(ctx, &requestObserver{c: c, gen: gen})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return FortuneResponse{}, nil, NewUnexpected(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.fetcher.Do(req)
	if err != nil {
		return FortuneResponse{}, nil, NewUnexpected(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return FortuneResponse{}, nil, &Error{Kind: KindPaymentNotProcessed, Status: resp.StatusCode, Message: ErrPaymentNotProcessed.Message}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return FortuneResponse{}, nil, NewRequestFailed(resp.StatusCode)
	}

	var body FortuneResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFortuneBody)).Decode(&body); err != nil {
		return FortuneResponse{}, nil, NewUnexpected(fmt.Errorf("failed to decode fortune: %w", err))
	}
	if body.Fortune == "" {
		return FortuneResponse{}, nil, NewUnexpected(errors.New("response carries no fortune"))
	}

	return body, c.settlement(resp.Header), nil
}

// settlement extracts the payment receipt. Failures are logged and dropped so
// they never mask a revealed fortune.
func (c *Controller) settlement(header http.Header) *Settlement {
	if c.extractor == nil {
		return nil
	}
	s, err := c.extractor.Settlement(header)
	if err != nil {
		c.log.WithError(err).Warn("failed to parse payment headers")
		return nil
	}
	if s.Transaction == "" {
		return nil
	}
	return &s
}

type requestObserver struct {
	c   *Controller
	gen uint64
}

func (o *requestObserver) PaymentRequired() {
	o.c.transition(o.gen, Snapshot.challenged)
}

func (o *requestObserver) PaymentSubmitted() {
	o.c.transition(o.gen, Snapshot.submitted)
}
