// Package client is a Go SDK for the kanha REST API. Stock listings are kept
// in a local cache for a short freshness window and invoice numbers fall back
// to a locally derived sequence when the server cannot be reached.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mpk-pharma/kanha/internal/auth"
	"github.com/mpk-pharma/kanha/internal/invoices"
	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/numbering"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
)

// APIError is an error response of the API.
type APIError struct {
	Status   int
	Message  string
	Problems []string
}

func (e *APIError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("api %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api %d: %s (%s)", e.Status, e.Message, strings.Join(e.Problems, "; "))
}

// ErrUnavailable wraps failures that never produced an API answer: transport
// errors and gateway responses.
var ErrUnavailable = errors.New("server unavailable")

// Options configure a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Cache      LocalCache
	CacheTTL   time.Duration
	Scheme     numbering.Scheme
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    LocalCache
	ttl      time.Duration
	fallback *numbering.CachedFallback
	numbers  numberStore
	logger   *slog.Logger

	mu    sync.RWMutex
	token string
}

// New builds a Client. A nil cache keeps entries in memory.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Scheme.Prefix == "" {
		opts.Scheme = numbering.DefaultScheme()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	store := numberStore{cache: opts.Cache}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     opts.HTTPClient,
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		fallback: numbering.NewCachedFallback(opts.Scheme, store),
		numbers:  store,
		logger:   opts.Logger,
		token:    opts.Token,
	}
}

// Token returns the bearer token in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.do(ctx, http.MethodPost, "/users/login", nil, auth.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return auth.LoginResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Logout revokes the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/users/logout", nil, nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

func itemsPrefix(userID int64) string {
	return "items:" + strconv.FormatInt(userID, 10) + ":"
}

// ListItems returns one page of the user's stock, served from the local cache
// while fresh.
func (c *Client) ListItems(ctx context.Context, userID int64, page, pageSize int) (items.Page, error) {
	key := fmt.Sprintf("%spage:%d:%d", itemsPrefix(userID), page, pageSize)
	var out items.Page
	if ok, err := c.cache.Get(ctx, key, &out); err != nil {
		c.logger.Warn("read item cache", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		return out, nil
	}

	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if err := c.do(ctx, http.MethodGet, "/items/user/"+strconv.FormatInt(userID, 10), q, nil, &out); err != nil {
		return items.Page{}, err
	}
	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		c.logger.Warn("write item cache", slog.String("key", key), slog.Any("error", err))
	}
	return out, nil
}

// Refresh drops the user's cached stock pages.
func (c *Client) Refresh(ctx context.Context, userID int64) error {
	return c.cache.DeletePrefix(ctx, itemsPrefix(userID))
}

func (c *Client) invalidate(ctx context.Context, userID int64) {
	if err := c.Refresh(ctx, userID); err != nil {
		c.logger.Warn("invalidate item cache", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// SearchItems runs a prefix search on cat_no or product_name.
func (c *Client) SearchItems(ctx context.Context, userID int64, searchType items.SearchType, term string) (items.SearchResult, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("searchType", string(searchType))
	q.Set("searchTerm", term)
	var out items.SearchResult
	err := c.do(ctx, http.MethodGet, "/items/search", q, nil, &out)
	return out, err
}

// ItemByCatNo looks an item up by its catalogue number.
func (c *Client) ItemByCatNo(ctx context.Context, catNo string) (items.Item, error) {
	var out items.Item
	err := c.do(ctx, http.MethodGet, "/items/cat-no/"+url.PathEscape(catNo), nil, nil, &out)
	return out, err
}

// CreateItem adds a stock item.
func (c *Client) CreateItem(ctx context.Context, req items.CreateItemRequest) (items.Item, error) {
	var out items.Item
	if err := c.do(ctx, http.MethodPost, "/items", nil, req, &out); err != nil {
		return items.Item{}, err
	}
	c.invalidate(ctx, out.UserID)
	return out, nil
}

// UpdateItem applies a partial update.
func (c *Client) UpdateItem(ctx context.Context, userID, id int64, patch items.ItemPatch) (items.Item, error) {
	var out items.Item
	if err := c.do(ctx, http.MethodPut, "/items/"+strconv.FormatInt(id, 10), nil, patch, &out); err != nil {
		return items.Item{}, err
	}
	c.invalidate(ctx, userID)
	return out, nil
}

// DeleteItem removes a stock item.
func (c *Client) DeleteItem(ctx context.Context, userID, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/items/"+strconv.FormatInt(id, 10), nil, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

// CreateInvoice submits an invoice. A non-empty idempotencyKey makes retries
// safe.
func (c *Client) CreateInvoice(ctx context.Context, userID int64, idempotencyKey string, req invoices.CreateRequest) (invoices.CreateResult, error) {
	var out invoices.CreateResult
	var headers http.Header
	if idempotencyKey != "" {
		headers = http.Header{invoices.IdempotencyHeader: []string{idempotencyKey}}
	}
	if err := c.doWithHeaders(ctx, http.MethodPost, "/invoices", nil, headers, req, &out); err != nil {
		return invoices.CreateResult{}, err
	}
	c.invalidate(ctx, userID)
	if err := c.numbers.SetLastInvoiceNumber(ctx, out.InvoiceNo); err != nil {
		c.logger.Warn("remember invoice number", slog.Any("error", err))
	}
	return out, nil
}

// Invoices lists the user's invoices newest first.
func (c *Client) Invoices(ctx context.Context, userID int64) ([]invoices.Summary, error) {
	var out []invoices.Summary
	err := c.do(ctx, http.MethodGet, "/invoices/user/"+strconv.FormatInt(userID, 10), nil, nil, &out)
	return out, err
}

// Invoice fetches one invoice with its cart.
func (c *Client) Invoice(ctx context.Context, id int64) (invoices.Detail, error) {
	var out invoices.Detail
	err := c.do(ctx, http.MethodGet, "/invoices/"+strconv.FormatInt(id, 10), nil, nil, &out)
	return out, err
}

// NextInvoiceNumber asks the server for the next number and remembers it.
// When the server is unavailable the number is derived from the last one
// remembered and offline is true; such a number may already be taken.
func (c *Client) NextInvoiceNumber(ctx context.Context) (number string, offline bool, err error) {
	var out struct {
		InvoiceNo string `json:"invoice_no"`
	}
	err = c.do(ctx, http.MethodGet, "/invoices/next-invoice-number", nil, nil, &out)
	if err == nil {
		if err := c.numbers.SetLastInvoiceNumber(ctx, out.InvoiceNo); err != nil {
			c.logger.Warn("remember invoice number", slog.Any("error", err))
		}
		return out.InvoiceNo, false, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return "", false, err
	}
	c.logger.Warn("next invoice number from local sequence", slog.Any("error", err))
	number, ferr := c.fallback.NextFallback(ctx)
	if ferr != nil {
		return "", false, errors.Join(err, ferr)
	}
	return number, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.doWithHeaders(ctx, method, path, query, nil, body, out)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, query url.Values, headers http.Header, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var eb httpx.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error, Problems: eb.ValidationErrors}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
