// Command kanhactl is the operator client of the kanha API. Stock pages and
// the last invoice number are cached on disk so listings stay quick and a
// provisional invoice number is available while the server is down.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mpk-pharma/kanha/cmd/kanhactl/cli"
	"github.com/mpk-pharma/kanha/internal/client"
	"github.com/mpk-pharma/kanha/internal/numbering"
)

type ctlConfig struct {
	APIURL            string        `envconfig:"KANHA_API_URL" default:"http://localhost:5050/api/v1"`
	CacheDir          string        `envconfig:"KANHA_CACHE_DIR"`
	CacheTTL          time.Duration `envconfig:"KANHA_CACHE_TTL" default:"5m"`
	Timeout           time.Duration `envconfig:"KANHA_TIMEOUT" default:"15s"`
	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	InvoicePrefix     string        `envconfig:"INVOICE_PREFIX" default:"MPK"`
	InvoiceFiscalYear string        `envconfig:"INVOICE_FISCAL_YEAR" default:"25-26"`
}

const usage = `usage: kanhactl <command> [flags]

commands:
  login           --email --password
  logout
  next-number     print the next invoice number
  items           [--page] [--page-size] [--refresh]
  search          --by cat_no|product_name --term
  price           --base --addon --qty
  low-stock-scan  [--user]
  queue           show job queue counters
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
	_ = godotenv.Load()
	var cfg ctlConfig
	if err := envconfig.Process("", &cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "kanhactl: %v\n", err)
		return 1
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	out := cli.Output{Stdout: stdout, Stderr: stderr}

	switch cmd {
	case "price":
		base := fs.String("base", "", "selling price, or MRP when no selling price is set")
		addon := fs.String("addon", "", "addon rate in percent")
		qty := fs.Int("qty", 1, "quantity")
		if err := fs.Parse(rest); err != nil {
			return 1
		}
		out.JSON = *jsonOut
		return cli.PriceCommand(*base, *addon, *qty, out)
	case "low-stock-scan", "queue":
		user := fs.Int64("user", 0, "user to scan, all users when 0")
		if err := fs.Parse(rest); err != nil {
			return 1
		}
		out.JSON = *jsonOut
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() { _ = jobsCLI.Close() }()
		if cmd == "queue" {
			return jobsCLI.QueueCommand(ctx, out)
		}
		return jobsCLI.LowStockScanCommand(ctx, *user, out)
	}

	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 10, "items per page")
	refresh := fs.Bool("refresh", false, "drop cached pages first")
	by := fs.String("by", "cat_no", "search column")
	term := fs.String("term", "", "search prefix")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	out.JSON = *jsonOut

	api, err := newAPICLI(cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "kanhactl: %v\n", err)
		return 1
	}
	switch cmd {
	case "login":
		return api.LoginCommand(ctx, *email, *password, out)
	case "logout":
		return api.LogoutCommand(ctx, out)
	case "next-number":
		return api.NextNumberCommand(ctx, out)
	case "items":
		return api.ItemsCommand(ctx, cli.ItemsOptions{Page: *page, PageSize: *pageSize, Refresh: *refresh}, out)
	case "search":
		return api.SearchCommand(ctx, *by, *term, out)
	default:
		_, _ = fmt.Fprintf(stderr, "kanhactl: unknown command %q\n\n%s", cmd, usage)
		return 1
	}
}

func newAPICLI(cfg ctlConfig, stderr io.Writer) (*cli.APICLI, error) {
	dir := cfg.CacheDir
	if dir == "" {
		dir = client.DefaultCacheDir()
	}
	cache, err := client.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	c := client.New(client.Options{
		BaseURL:  cfg.APIURL,
		Timeout:  cfg.Timeout,
		Cache:    cache,
		CacheTTL: cfg.CacheTTL,
		Scheme:   numbering.NewScheme(cfg.InvoicePrefix, cfg.InvoiceFiscalYear, time.Now()),
		Logger:   logger,
	})
	return cli.NewAPICLI(c, cache), nil
}
