package filter

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Runner executes one search. Runners are called on their own goroutine and are never
// cancelled by later searches; whichever response lands last is what the user sees.
type Runner func(ctx context.Context, q url.Values)

// Controller owns the filter state of one product listing.
type Controller struct {
	mu        sync.Mutex
	state     State
	defaults  Defaults
	debouncer *Debouncer
	run       Runner
	onInvalid func(error)
}

type Option func(*Controller)

// WithInvalidHandler is called instead of the runner when the state fails validation.
func WithInvalidHandler(fn func(error)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.onInvalid = fn
		}
	}
}

func WithDebounce(delay time.Duration) Option {
	return func(c *Controller) { c.debouncer = NewDebouncer(delay) }
}

func NewController(defaults Defaults, run Runner, opts ...Option) *Controller {
	c := &Controller{
		state:     Clear(defaults),
		defaults:  defaults,
		debouncer: NewDebouncer(DefaultDebounce),
		run:       run,
		onInvalid: func(error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Defaults() Defaults {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}

// SetDefaults records the latest server-provided price range and sort. The current
// state is untouched; the next Clear uses the new values.
func (c *Controller) SetDefaults(d Defaults) {
	c.mu.Lock()
	c.defaults = d
	c.mu.Unlock()
}

// SetKeyword updates the free-text search and fires after typing pauses.
func (c *Controller) SetKeyword(ctx context.Context, keyword string) {
	c.mu.Lock()
	c.state.Keyword = keyword
	c.state.Page = 0
	c.mu.Unlock()
	c.debouncer.Trigger(func() { c.fire(ctx) })
}

func (c *Controller) SetCategory(ctx context.Context, id *int64) {
	c.update(ctx, func(s *State) { s.CategoryID = id })
}

func (c *Controller) SetSort(ctx context.Context, sort SortOrder) {
	c.update(ctx, func(s *State) { s.Sort = sort })
}

func (c *Controller) SetInStockOnly(ctx context.Context, on bool) {
	c.update(ctx, func(s *State) { s.InStockOnly = on })
}

func (c *Controller) SetPriceRange(ctx context.Context, min, max decimal.NullDecimal) {
	c.update(ctx, func(s *State) {
		s.PriceMin = min
		s.PriceMax = max
	})
}

func (c *Controller) SetPage(ctx context.Context, page int) {
	c.mu.Lock()
	c.state.Page = page
	c.mu.Unlock()
	c.fireNow(ctx)
}

// Clear resets to the last known server defaults and fires immediately.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	c.state = Clear(c.defaults)
	c.mu.Unlock()
	c.fireNow(ctx)
}

// Refresh fires the current state without changing it.
func (c *Controller) Refresh(ctx context.Context) {
	c.fireNow(ctx)
}

func (c *Controller) update(ctx context.Context, fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Page = 0
	c.mu.Unlock()
	c.fireNow(ctx)
}

// fireNow supersedes a pending keyword search, which would otherwise resend this state.
func (c *Controller) fireNow(ctx context.Context) {
	c.debouncer.Cancel()
	c.fire(ctx)
}

func (c *Controller) fire(ctx context.Context) {
	s := c.State()
	if err := s.Validate(); err != nil {
		c.onInvalid(err)
		return
	}
	go c.run(ctx, s.Query())
}
