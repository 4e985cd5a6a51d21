package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpk-pharma/kanha/internal/client"
	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/numbering"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
	"github.com/mpk-pharma/kanha/jobs"
)

type stubAPI struct {
	down      atomic.Bool
	listCalls atomic.Int32
}

func (s *stubAPI) start(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if s.down.Load() {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/users/login", func(w http.ResponseWriter, req *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message":    "Login successful",
			"token":      "tok-7",
			"expires_at": time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
			"user":       map[string]any{"id": 7, "shop_name": "Kanha Medicals", "email": "a@b.in"},
		})
	})
	r.Get("/items/user/{userId}", func(w http.ResponseWriter, req *http.Request) {
		s.listCalls.Add(1)
		if req.Header.Get("Authorization") != "Bearer tok-7" || chi.URLParam(req, "userId") != "7" {
			httpx.Fail(w, http.StatusForbidden, "You can only access your own records")
			return
		}
		httpx.JSON(w, http.StatusOK, items.Page{
			Items:      []items.Item{{ID: 1, UserID: 7, CatNo: "AB100", ProductName: "Paracetamol", Quantity: 40, MRP: decimal.RequireFromString("12.5")}},
			Pagination: shared.NewPagination(1, 10, 1),
		})
	})
	r.Get("/items/search", func(w http.ResponseWriter, req *http.Request) {
		httpx.Fail(w, http.StatusBadRequest, "Invalid search parameters", "searchTerm is required")
	})
	r.Get("/invoices/next-invoice-number", func(w http.ResponseWriter, req *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"invoice_no": "MPK/25-26/00004"})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAPICLI(t *testing.T, srv *httptest.Server) *APICLI {
	t.Helper()
	cache, err := client.NewFileCache(t.TempDir())
	require.NoError(t, err)
	c := client.New(client.Options{BaseURL: srv.URL, Cache: cache, Scheme: numbering.DefaultScheme()})
	return NewAPICLI(c, cache)
}

func TestLoginThenItemsUsesStoredSession(t *testing.T) {
	api := &stubAPI{}
	cli := newTestAPICLI(t, api.start(t))
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	out := Output{Stdout: &stdout, Stderr: &stderr}
	require.Equal(t, 0, cli.LoginCommand(ctx, "a@b.in", "pw", out))
	assert.Contains(t, stdout.String(), "Kanha Medicals")

	stdout.Reset()
	require.Equal(t, 0, cli.ItemsCommand(ctx, ItemsOptions{Page: 1, PageSize: 10}, out), stderr.String())
	assert.Contains(t, stdout.String(), "AB100")
	assert.Contains(t, stdout.String(), "12.50")

	require.Equal(t, 0, cli.ItemsCommand(ctx, ItemsOptions{Page: 1, PageSize: 10}, out))
	assert.Equal(t, int32(1), api.listCalls.Load())

	require.Equal(t, 0, cli.ItemsCommand(ctx, ItemsOptions{Page: 1, PageSize: 10, Refresh: true}, out))
	assert.Equal(t, int32(2), api.listCalls.Load())
}

func TestCommandsRequireLogin(t *testing.T) {
	cli := newTestAPICLI(t, (&stubAPI{}).start(t))

	var stderr bytes.Buffer
	code := cli.NextNumberCommand(context.Background(), Output{Stdout: &bytes.Buffer{}, Stderr: &stderr})

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not logged in")
}

func TestNextNumberFallsBackOffline(t *testing.T) {
	api := &stubAPI{}
	cli := newTestAPICLI(t, api.start(t))
	ctx := context.Background()
	var stdout, stderr bytes.Buffer
	out := Output{Stdout: &stdout, Stderr: &stderr}
	require.Equal(t, 0, cli.LoginCommand(ctx, "a@b.in", "pw", out))

	stdout.Reset()
	require.Equal(t, 0, cli.NextNumberCommand(ctx, out))
	assert.Equal(t, "MPK/25-26/00004\n", stdout.String())

	api.down.Store(true)
	stdout.Reset()
	assert.Equal(t, 2, cli.NextNumberCommand(ctx, out))
	assert.Contains(t, stdout.String(), "MPK/25-26/00005 (offline")
}

func TestSearchReportsProblems(t *testing.T) {
	cli := newTestAPICLI(t, (&stubAPI{}).start(t))
	ctx := context.Background()
	var stdout, stderr bytes.Buffer
	out := Output{Stdout: &stdout, Stderr: &stderr}
	require.Equal(t, 0, cli.LoginCommand(ctx, "a@b.in", "pw", out))

	assert.Equal(t, 1, cli.SearchCommand(ctx, "cat_no", "", out))
	assert.Contains(t, stderr.String(), "Invalid search parameters")
	assert.Contains(t, stderr.String(), "searchTerm is required")

	stderr.Reset()
	assert.Equal(t, 1, cli.SearchCommand(ctx, "lot_no", "A", out))
	assert.Contains(t, stderr.String(), "--by must be")
}

func TestPriceCommand(t *testing.T) {
	var stdout bytes.Buffer
	code := PriceCommand("100", "10", 3, Output{Stdout: &stdout, Stderr: &bytes.Buffer{}, JSON: true})

	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"price":"110.00","total":"330.00"}`, stdout.String())

	assert.Equal(t, 1, PriceCommand("abc", "", 1, Output{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}))
	assert.Equal(t, 1, PriceCommand("10", "", 0, Output{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestLowStockScanCommand(t *testing.T) {
	enq := &fakeEnqueuer{}
	jobsCLI := NewJobsCLIWith(jobs.NewClientWith(enq), nil)

	var stdout bytes.Buffer
	code := jobsCLI.LowStockScanCommand(context.Background(), 7, Output{Stdout: &stdout, Stderr: &bytes.Buffer{}})

	require.Equal(t, 0, code)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskLowStockScan, enq.tasks[0].Type())
	assert.JSONEq(t, `{"user_id":7}`, string(enq.tasks[0].Payload()))
	assert.Contains(t, stdout.String(), "enqueued task-1")
}

func TestQueueCommand(t *testing.T) {
	jobsCLI := NewJobsCLIWith(nil, fakeInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}})

	var stdout bytes.Buffer
	require.Equal(t, 0, jobsCLI.QueueCommand(context.Background(), Output{Stdout: &stdout, Stderr: &bytes.Buffer{}}))
	assert.Contains(t, stdout.String(), "pending=3")
	assert.Contains(t, stdout.String(), "retry=1")

	failing := NewJobsCLIWith(nil, fakeInspector{err: errors.New("redis down")})
	var stderr bytes.Buffer
	assert.Equal(t, 1, failing.QueueCommand(context.Background(), Output{Stdout: &bytes.Buffer{}, Stderr: &stderr}))
	assert.Contains(t, stderr.String(), "redis down")
}
