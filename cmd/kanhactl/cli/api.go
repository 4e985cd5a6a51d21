package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/client"
	"github.com/mpk-pharma/kanha/internal/invoices"
	"github.com/mpk-pharma/kanha/internal/items"
)

const sessionKey = "kanhactl:session"

// Session is what login leaves behind for later commands.
type Session struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	ShopName string `json:"shop_name"`
}

// Output selects where and how results are printed.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// APICLI runs commands against the REST API through the client SDK.
type APICLI struct {
	client *client.Client
	cache  client.LocalCache
}

// NewAPICLI wires the CLI to an SDK client sharing cache with it.
func NewAPICLI(c *client.Client, cache client.LocalCache) *APICLI {
	return &APICLI{client: c, cache: cache}
}

// Restore loads a stored session into the client.
func (c *APICLI) Restore(ctx context.Context) (Session, bool) {
	var s Session
	ok, err := c.cache.Get(ctx, sessionKey, &s)
	if err != nil || !ok {
		return Session{}, false
	}
	c.client.SetToken(s.Token)
	return s, true
}

func (c *APICLI) requireSession(ctx context.Context, out Output, cmd string) (Session, bool) {
	s, ok := c.Restore(ctx)
	if !ok || s.Token == "" {
		_, _ = fmt.Fprintf(out.Stderr, "%s: not logged in, run kanhactl login first\n", cmd)
		return Session{}, false
	}
	return s, true
}

// LoginCommand signs in and stores the session.
func (c *APICLI) LoginCommand(ctx context.Context, email, password string, out Output) int {
	out = out.withDefaults()
	if email == "" || password == "" {
		_, _ = fmt.Fprintln(out.Stderr, "login: --email and --password are required")
		return 1
	}
	resp, err := c.client.Login(ctx, email, password)
	if err != nil {
		return fail(out, "login", err)
	}
	s := Session{Token: resp.Token, UserID: resp.User.ID, ShopName: resp.User.ShopName}
	if err := c.cache.Set(ctx, sessionKey, s, 0); err != nil {
		return fail(out, "login", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "logged in as %s (user %d), session valid until %s\n",
		resp.User.ShopName, resp.User.ID, resp.ExpiresAt.Format("02 Jan 2006 15:04"))
	return 0
}

// LogoutCommand revokes the session and forgets it locally.
func (c *APICLI) LogoutCommand(ctx context.Context, out Output) int {
	out = out.withDefaults()
	if _, ok := c.requireSession(ctx, out, "logout"); !ok {
		return 1
	}
	err := c.client.Logout(ctx)
	if derr := c.cache.Delete(ctx, sessionKey); derr != nil {
		err = errors.Join(err, derr)
	}
	if err != nil {
		return fail(out, "logout", err)
	}
	_, _ = fmt.Fprintln(out.Stdout, "logged out")
	return 0
}

// NextNumberCommand prints the next invoice number. Exit code 2 flags a
// number derived offline.
func (c *APICLI) NextNumberCommand(ctx context.Context, out Output) int {
	out = out.withDefaults()
	if _, ok := c.requireSession(ctx, out, "next-number"); !ok {
		return 1
	}
	number, offline, err := c.client.NextInvoiceNumber(ctx)
	if err != nil {
		return fail(out, "next-number", err)
	}
	if out.JSON {
		return encode(out, "next-number", map[string]any{"invoice_no": number, "offline": offline})
	}
	if offline {
		_, _ = fmt.Fprintf(out.Stdout, "%s (offline, confirm before use)\n", number)
		return 2
	}
	_, _ = fmt.Fprintln(out.Stdout, number)
	return 0
}

// ItemsOptions configures the items command.
type ItemsOptions struct {
	Page     int
	PageSize int
	Refresh  bool
}

// ItemsCommand lists a page of the user's stock.
func (c *APICLI) ItemsCommand(ctx context.Context, opts ItemsOptions, out Output) int {
	out = out.withDefaults()
	s, ok := c.requireSession(ctx, out, "items")
	if !ok {
		return 1
	}
	if opts.Refresh {
		if err := c.client.Refresh(ctx, s.UserID); err != nil {
			return fail(out, "items", err)
		}
	}
	page, err := c.client.ListItems(ctx, s.UserID, opts.Page, opts.PageSize)
	if err != nil {
		return fail(out, "items", err)
	}
	if out.JSON {
		return encode(out, "items", page)
	}
	renderItems(out.Stdout, page.Items)
	_, _ = fmt.Fprintf(out.Stdout, "page %d of %d, %d items\n", page.Page, page.TotalPages, page.Total)
	return 0
}

// SearchCommand runs a prefix search.
func (c *APICLI) SearchCommand(ctx context.Context, by, term string, out Output) int {
	out = out.withDefaults()
	s, ok := c.requireSession(ctx, out, "search")
	if !ok {
		return 1
	}
	searchType := items.SearchType(by)
	if !searchType.Valid() {
		_, _ = fmt.Fprintf(out.Stderr, "search: --by must be %s or %s\n", items.SearchByCatNo, items.SearchByProductName)
		return 1
	}
	result, err := c.client.SearchItems(ctx, s.UserID, searchType, term)
	if err != nil {
		return fail(out, "search", err)
	}
	if out.JSON {
		return encode(out, "search", result)
	}
	renderItems(out.Stdout, result.Items)
	_, _ = fmt.Fprintf(out.Stdout, "%d matches\n", result.Count)
	return 0
}

// PriceCommand prices one line the way the invoice form does.
func PriceCommand(base, addon string, quantity int, out Output) int {
	out = out.withDefaults()
	b, err := decimal.NewFromString(base)
	if err != nil || b.IsNegative() {
		_, _ = fmt.Fprintf(out.Stderr, "price: invalid base price %q\n", base)
		return 1
	}
	var a decimal.NullDecimal
	if addon != "" {
		v, err := decimal.NewFromString(addon)
		if err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "price: invalid addon rate %q\n", addon)
			return 1
		}
		a = decimal.NewNullDecimal(v)
	}
	if quantity <= 0 {
		_, _ = fmt.Fprintln(out.Stderr, "price: --qty must be positive")
		return 1
	}
	price, total := invoices.PriceLine(b, a, quantity)
	if out.JSON {
		return encode(out, "price", map[string]string{"price": price.StringFixed(2), "total": total.StringFixed(2)})
	}
	_, _ = fmt.Fprintf(out.Stdout, "price %s x %d = %s\n", price.StringFixed(2), quantity, total.StringFixed(2))
	return 0
}

func renderItems(w io.Writer, list []items.Item) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCAT NO\tPRODUCT\tQTY\tMRP")
	for _, it := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", it.ID, it.CatNo, it.ProductName, it.Quantity, it.MRP.StringFixed(2))
	}
	_ = tw.Flush()
}

func encode(out Output, cmd string, v any) int {
	if err := json.NewEncoder(out.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "%s: encode json: %v\n", cmd, err)
		return 1
	}
	return 0
}

func fail(out Output, cmd string, err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		_, _ = fmt.Fprintf(out.Stderr, "%s: %s\n", cmd, apiErr.Message)
		for _, p := range apiErr.Problems {
			_, _ = fmt.Fprintf(out.Stderr, "  - %s\n", p)
		}
		return 1
	}
	_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", cmd, err)
	return 1
}
