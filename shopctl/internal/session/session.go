// Package session is the interactive storefront shell behind shopctl: a product
// listing driven by filter commands and a cart edited by absolute quantities.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

var errQuit = errors.New("quit")

// Backend is the subset of the shop API the shell uses.
type Backend interface {
	cart.Store
	SearchProducts(ctx context.Context, q url.Values) (*shopapi.ProductPage, error)
	FilterMetadata(ctx context.Context) (*shopapi.FilterMetadata, error)
}

type Session struct {
	backend Backend
	ctrl    *filter.Controller
	carts   *cart.Reconciler
	view    *cart.View
	in      *bufio.Scanner
	log     *slog.Logger

	mu  sync.Mutex // guards out
	out io.Writer

	// rendered, when set, receives one value per printed search result.
	rendered chan struct{}
}

type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

func New(backend Backend, in io.Reader, out io.Writer, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	s := &Session{
		backend: backend,
		view:    cart.NewView(nil),
		in:      bufio.NewScanner(in),
		out:     out,
		log:     opts.Logger,
	}
	s.ctrl = filter.NewController(filter.Defaults{Sort: filter.DefaultSort}, s.search,
		filter.WithDebounce(opts.Debounce),
		filter.WithInvalidHandler(func(err error) { s.printf("filter not applied: %v\n", err) }))
	s.carts = cart.NewReconciler(backend, cart.ConfirmFunc(s.confirmRemove))
	return s
}

// Run loads the filter defaults and the cart, then reads commands until EOF or quit.
func (s *Session) Run(ctx context.Context) error {
	if err := s.loadDefaults(ctx); err != nil {
		s.printf("could not load filters: %s\n", shopapi.MessageOf(err))
	}
	s.ctrl.Clear(ctx)
	if err := s.reloadCart(ctx); err != nil {
		s.printf("could not load cart: %s\n", shopapi.MessageOf(err))
	}

	s.printf("type help for commands\n")
	for {
		s.printf("> ")
		if !s.in.Scan() {
			return s.in.Err()
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		err := s.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.printf("error: %s\n", describe(err))
		}
	}
}

func (s *Session) exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	args := strings.Fields(rest)

	switch cmd {
	case "help":
		s.printf("%s", helpText)
	case "quit", "exit":
		return errQuit

	case "k", "search":
		s.ctrl.SetKeyword(ctx, strings.TrimSpace(rest))
	case "cat":
		if len(args) != 1 {
			return errors.New("usage: cat <id|all>")
		}
		if args[0] == "all" {
			s.ctrl.SetCategory(ctx, nil)
			return nil
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid category %q", args[0])
		}
		s.ctrl.SetCategory(ctx, &id)
	case "sort":
		if len(args) != 1 {
			return fmt.Errorf("usage: sort <%s>", joinSorts())
		}
		o, err := filter.ParseSort(args[0])
		if err != nil {
			return err
		}
		s.ctrl.SetSort(ctx, o)
	case "stock":
		if len(args) != 1 {
			return errors.New("usage: stock on|off")
		}
		s.ctrl.SetInStockOnly(ctx, args[0] == "on")
	case "price":
		if len(args) != 2 {
			return errors.New("usage: price <min|-> <max|->")
		}
		lo, err := parseBound(args[0])
		if err != nil {
			return err
		}
		hi, err := parseBound(args[1])
		if err != nil {
			return err
		}
		s.ctrl.SetPriceRange(ctx, lo, hi)
	case "page":
		n, err := parsePositive(args, "usage: page <n>")
		if err != nil {
			return err
		}
		s.ctrl.SetPage(ctx, n)
	case "clear":
		if err := s.loadDefaults(ctx); err != nil {
			s.log.Warn("keeping previous filter defaults", slog.Any("error", err))
		}
		s.ctrl.Clear(ctx)
	case "filters":
		return s.showFilters(ctx)

	case "cart":
		if err := s.reloadCart(ctx); err != nil {
			return err
		}
	case "add":
		if len(args) != 2 {
			return errors.New("usage: add <product> <qty>")
		}
		pid, err := parsePositive(args[:1], "invalid product")
		if err != nil {
			return err
		}
		qty, err := parsePositive(args[1:], "invalid quantity")
		if err != nil {
			return err
		}
		if s.carts.Busy("", int64(pid)) {
			return cart.ErrLineBusy
		}
		if err := s.backend.AddToCart(ctx, int64(pid), qty); err != nil {
			return err
		}
		return s.reloadCart(ctx)
	case "set", "rm":
		want := 0
		if cmd == "set" {
			if len(args) != 2 {
				return errors.New("usage: set <product> <qty>")
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			want = n
		} else if len(args) != 1 {
			return errors.New("usage: rm <product>")
		}
		pid, err := parsePositive(args[:1], "invalid product")
		if err != nil {
			return err
		}
		return s.setQuantity(ctx, int64(pid), want)

	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (s *Session) setQuantity(ctx context.Context, productID int64, quantity int) error {
	out, err := s.carts.SetQuantity(ctx, s.view, cart.Request{ProductID: productID, Requested: quantity})
	if out != nil {
		switch out.Action {
		case cart.ActionDeclined:
			s.printf("kept %d of product %d\n", out.Displayed, productID)
		case cart.ActionNone:
		default:
			s.printf("product %d: %d -> %d\n", productID, out.Change.Previous, out.Displayed)
		}
		if out.Cart != nil {
			s.printCart(out.Cart)
		}
	}
	return err
}

func (s *Session) confirmRemove(_ context.Context, productID int64, current int) (bool, error) {
	s.printf("remove all %d of product %d from the cart? [y/N] ", current, productID)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(s.in.Text()))
	return answer == "y" || answer == "yes", nil
}

func (s *Session) loadDefaults(ctx context.Context) error {
	m, err := s.backend.FilterMetadata(ctx)
	if err != nil {
		return err
	}
	s.ctrl.SetDefaults(filter.Defaults{PriceMin: m.MinPrice, PriceMax: m.MaxPrice, Sort: filter.DefaultSort})
	return nil
}

func (s *Session) reloadCart(ctx context.Context) error {
	c, err := s.backend.GetCart(ctx)
	if err != nil {
		return err
	}
	s.view.Replace(c)
	s.printCart(c)
	return nil
}

func (s *Session) showFilters(ctx context.Context) error {
	m, err := s.backend.FilterMetadata(ctx)
	if err != nil {
		return err
	}
	st := s.ctrl.State()
	s.printf("price %s..%s, sort %s\n", m.MinPrice.StringFixed(2), m.MaxPrice.StringFixed(2), joinSorts())
	for _, c := range m.Categories {
		indent := ""
		if c.ParentID != nil {
			indent = "  "
		}
		s.printf("%s%d %s\n", indent, c.ID, c.Name)
	}
	s.printf("current: %s\n", st.Query().Encode())
	return nil
}

// search is the filter runner. Responses are printed in arrival order.
func (s *Session) search(ctx context.Context, q url.Values) {
	page, err := s.backend.SearchProducts(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		fmt.Fprintf(s.out, "\nsearch failed: %s\n", shopapi.MessageOf(err))
	} else {
		fmt.Fprintf(s.out, "\n%d products (%s)\n", page.Total, q.Encode())
		for _, p := range page.Items {
			price := p.Price
			if p.DiscountedPrice.IsPositive() && p.DiscountedPrice.LessThan(p.Price) {
				price = p.DiscountedPrice
			}
			stock := "in stock"
			if !p.InStock() {
				stock = "out of stock"
			}
			fmt.Fprintf(s.out, "  %3d  %-28s %8s  %s\n", p.ID, p.Name, price.StringFixed(2), stock)
		}
	}
	if s.rendered != nil {
		s.rendered <- struct{}{}
	}
}

func (s *Session) printCart(c *cart.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ItemCount() == 0 {
		fmt.Fprintln(s.out, "cart is empty")
		return
	}
	for _, l := range c.Lines {
		fmt.Fprintf(s.out, "  %3d  %-28s x%-3d %8s\n", l.ProductID, l.Name, l.Quantity, l.Total().StringFixed(2))
	}
	fmt.Fprintf(s.out, "  total %s (saved %s)\n", c.Total().StringFixed(2), c.Discount().StringFixed(2))
}

func (s *Session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// describe adds a hint to errors the user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, cart.ErrCartDiverged):
		return shopapi.MessageOf(err) + " (run cart to reload)"
	case errors.Is(err, shopapi.ErrUnauthenticated):
		return "not logged in, restart with -token"
	case errors.Is(err, shopapi.ErrNetwork):
		return "shop is unreachable: " + shopapi.MessageOf(err)
	default:
		return shopapi.MessageOf(err)
	}
}

func parseBound(s string) (decimal.NullDecimal, error) {
	if s == "-" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid price %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

func parsePositive(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New(usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, errors.New(usage)
	}
	return n, nil
}

func joinSorts() string {
	orders := filter.SortOrders()
	names := make([]string, len(orders))
	for i, o := range orders {
		names[i] = string(o)
	}
	return strings.Join(names, "|")
}

const helpText = `listing:
  k <text>            search by keyword (applied after typing pauses)
  cat <id|all>        filter by category
  sort <order>        change sort order
  stock on|off        only show products in stock
  price <min> <max>   price range, - for no bound
  page <n>            go to page
  clear               reset every filter
  filters             show categories and price range
cart:
  cart                show the cart
  add <product> <n>   add n more
  set <product> <n>   set the quantity, 0 removes
  rm <product>        remove the line
quit
`
