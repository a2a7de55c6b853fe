package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrLineBusy           = errors.New("a quantity change for this product is already in progress")
	ErrCartDiverged       = errors.New("cart could not be restored, reload the cart")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
)

const DefaultMaxLineQuantity = 99

// followUpTimeout bounds the compensating add and the cart reload, which run even
// when the caller's context has already expired.
const followUpTimeout = 5 * time.Second

// Store is the backend cart API. It can only add to a line or drop it entirely.
type Store interface {
	GetCart(ctx context.Context) (*Cart, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	RemoveFromCart(ctx context.Context, productID int64) error
}

// Confirmer asks the user whether a line really should be removed.
type Confirmer interface {
	ConfirmRemove(ctx context.Context, productID int64, current int) (bool, error)
}

type ConfirmFunc func(ctx context.Context, productID int64, current int) (bool, error)

func (f ConfirmFunc) ConfirmRemove(ctx context.Context, productID int64, current int) (bool, error) {
	return f(ctx, productID, current)
}

// Always and Never are fixed answers, for callers that collected consent up front.
var (
	Always = ConfirmFunc(func(context.Context, int64, int) (bool, error) { return true, nil })
	Never  = ConfirmFunc(func(context.Context, int64, int) (bool, error) { return false, nil })
)

type Action string

const (
	ActionNone      Action = "none"
	ActionDeclined  Action = "declined"
	ActionIncrement Action = "increment"
	ActionRemove    Action = "remove"
	ActionReplace   Action = "replace"
)

type Request struct {
	// Owner scopes the in-flight guard, e.g. a user ID. Empty for single-user clients.
	Owner     string
	ProductID int64
	Requested int
}

type PendingChange struct {
	ProductID int64 `json:"product_id"`
	Previous  int   `json:"previous"`
	Requested int   `json:"requested"`
}

type Outcome struct {
	Action Action        `json:"action"`
	Change PendingChange `json:"change"`
	// Displayed is the value the quantity input should show now.
	Displayed int `json:"displayed"`
	// Cart is the reloaded server cart; nil when nothing was sent to the backend.
	Cart *Cart `json:"cart,omitempty"`
}

type lineKey struct {
	owner     string
	productID int64
}

// Reconciler turns "set quantity to N" into the add/remove calls the backend supports.
type Reconciler struct {
	store       Store
	confirm     Confirmer
	notify      Notifier
	maxQuantity int
	followUp    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inflight map[lineKey]struct{}
}

type Option func(*Reconciler)

func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

func WithMaxQuantity(n int) Option {
	return func(r *Reconciler) { r.maxQuantity = n }
}

func NewReconciler(store Store, confirm Confirmer, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		confirm:     confirm,
		notify:      NopNotifier{},
		maxQuantity: DefaultMaxLineQuantity,
		followUp:    followUpTimeout,
		now:         time.Now,
		inflight:    make(map[lineKey]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.confirm == nil {
		r.confirm = Never
	}
	return r
}

// SetQuantity moves one line from the quantity shown in view to req.Requested.
//
// Increases are a single add of the difference. Decreases remove the line and add it
// back with the new quantity; if that add fails the old quantity is added back once,
// and if that fails too the error wraps ErrCartDiverged. After any backend call the
// whole cart is reloaded into view so the display never relies on local arithmetic.
func (r *Reconciler) SetQuantity(ctx context.Context, view *View, req Request) (*Outcome, error) {
	previous := view.Quantity(req.ProductID)
	out := &Outcome{
		Action:    ActionNone,
		Change:    PendingChange{ProductID: req.ProductID, Previous: previous, Requested: req.Requested},
		Displayed: previous,
	}

	if req.Requested > r.maxQuantity {
		return out, fmt.Errorf("%w: at most %d per product", ErrQuantityOutOfRange, r.maxQuantity)
	}

	key := lineKey{owner: req.Owner, productID: req.ProductID}
	if !r.acquire(key) {
		return out, ErrLineBusy
	}
	defer r.release(key)

	switch {
	case req.Requested <= 0:
		if previous == 0 {
			return out, nil
		}
		ok, err := r.confirm.ConfirmRemove(ctx, req.ProductID, previous)
		if err != nil {
			return out, fmt.Errorf("confirm removal: %w", err)
		}
		if !ok {
			out.Action = ActionDeclined
			return out, nil
		}
		out.Action = ActionRemove
		err = r.store.RemoveFromCart(ctx, req.ProductID)
		if err != nil {
			err = fmt.Errorf("remove product %d: %w", req.ProductID, err)
		}
		return r.finish(ctx, view, req, out, err)

	case req.Requested == previous:
		return out, nil

	case req.Requested > previous:
		out.Action = ActionIncrement
		err := r.store.AddToCart(ctx, req.ProductID, req.Requested-previous)
		if err != nil {
			err = fmt.Errorf("add %d of product %d: %w", req.Requested-previous, req.ProductID, err)
		}
		return r.finish(ctx, view, req, out, err)

	default:
		out.Action = ActionReplace
		err := r.replace(ctx, req.ProductID, previous, req.Requested)
		return r.finish(ctx, view, req, out, err)
	}
}

func (r *Reconciler) replace(ctx context.Context, productID int64, previous, requested int) error {
	if err := r.store.RemoveFromCart(ctx, productID); err != nil {
		return fmt.Errorf("remove product %d: %w", productID, err)
	}
	err := r.store.AddToCart(ctx, productID, requested)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("re-add product %d with quantity %d: %w", productID, requested, err)

	restoreCtx, cancel := r.detach(ctx)
	defer cancel()
	if restoreErr := r.store.AddToCart(restoreCtx, productID, previous); restoreErr != nil {
		return errors.Join(err, fmt.Errorf("%w: restoring quantity %d failed: %w", ErrCartDiverged, previous, restoreErr))
	}
	return err
}

func (r *Reconciler) finish(ctx context.Context, view *View, req Request, out *Outcome, opErr error) (*Outcome, error) {
	r.report(ctx, req, out, opErr)

	loadCtx, cancel := r.detach(ctx)
	defer cancel()
	c, loadErr := r.store.GetCart(loadCtx)
	if loadErr == nil {
		view.Replace(c)
		out.Cart = c
		out.Displayed = view.Quantity(req.ProductID)
		return out, opErr
	}

	loadErr = fmt.Errorf("reload cart: %w", loadErr)
	if opErr != nil {
		return out, errors.Join(opErr, loadErr)
	}
	view.Set(req.ProductID, max(req.Requested, 0))
	out.Displayed = view.Quantity(req.ProductID)
	return out, loadErr
}

// detach keeps ctx values such as the auth token but drops its deadline and
// cancellation, so cleanup still reaches the backend after the request timed out.
func (r *Reconciler) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.followUp)
}

func (r *Reconciler) report(ctx context.Context, req Request, out *Outcome, opErr error) {
	e := Event{
		Owner:      req.Owner,
		ProductID:  req.ProductID,
		Previous:   out.Change.Previous,
		Requested:  req.Requested,
		OccurredAt: r.now(),
	}
	switch {
	case errors.Is(opErr, ErrCartDiverged):
		e.Type = EventCartDiverged
	case opErr != nil:
		e.Type = EventReconcileFailed
	case out.Action == ActionRemove:
		e.Type = EventLineRemoved
	default:
		e.Type = EventQuantityChanged
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	r.notify.Notify(ctx, e)
}

func (r *Reconciler) acquire(k lineKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[k]; busy {
		return false
	}
	r.inflight[k] = struct{}{}
	return true
}

func (r *Reconciler) release(k lineKey) {
	r.mu.Lock()
	delete(r.inflight, k)
	r.mu.Unlock()
}

// Busy reports whether a change for the line is in flight, i.e. its input should be disabled.
func (r *Reconciler) Busy(owner string, productID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inflight[lineKey{owner: owner, productID: productID}]
	return busy
}
