// Command order-archive exports orders to gzip-compressed JSON Lines files,
// one file per UTC day, and optionally prunes the archived rows.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/matcha-bar/internal/codec"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/storage/postgres"
)

const dayLayout = "2006-01-02"

// maxLine bounds a single archived order when reading files back.
const maxLine = 1 << 20

// Source lists orders for a time range.
type Source interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error)
}

type options struct {
	outDir  string
	before  time.Time
	days    int
	workers int
	prune   bool
}

func main() {
	var (
		databaseURL string
		before      string
		opts        options
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.outDir, "out-dir", "archive", "directory for orders-YYYY-MM-DD.jsonl.gz files")
	flag.StringVar(&before, "before", "", "archive days before this UTC date (YYYY-MM-DD, default today)")
	flag.IntVar(&opts.days, "days", 30, "number of days to archive")
	flag.IntVar(&opts.workers, "workers", 4, "days exported concurrently")
	flag.BoolVar(&opts.prune, "delete", false, "delete archived orders after every file is verified")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	opts.before = time.Now().UTC().Truncate(24 * time.Hour)
	if before != "" {
		t, err := time.Parse(dayLayout, before)
		if err != nil {
			slog.Error("invalid --before date", slog.String("value", before))
			os.Exit(1)
		}
		opts.before = t
	}
	if opts.days < 1 || opts.workers < 1 {
		slog.Error("--days and --workers must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, opts); err != nil {
		slog.Error("order archive failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("order archive completed successfully")
}

func run(ctx context.Context, databaseURL string, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewOrderRepository(pool)

	total, err := archive(ctx, repo, opts)
	if err != nil {
		return err
	}
	slog.Info("orders archived", slog.Int("count", total), slog.String("dir", opts.outDir))

	if !opts.prune {
		return nil
	}
	n, err := repo.DeleteCreatedBefore(ctx, opts.before)
	if err != nil {
		return errors.Wrap(err, "delete archived orders")
	}
	slog.Info("archived orders deleted", slog.Int64("count", n))
	if n > int64(total) {
		slog.Warn("deleted more orders than archived, older days were outside the window",
			slog.Int64("deleted", n),
			slog.Int("archived", total),
		)
	}
	return nil
}

// archive exports and verifies every day in the window. It returns the
// number of archived orders.
func archive(ctx context.Context, src Source, opts options) (int, error) {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create output directory")
	}

	days := window(opts.before, opts.days)
	counts := make([]int, len(days))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers)
	for i, day := range days {
		g.Go(func() error {
			n, err := archiveDay(ctx, src, opts.outDir, day)
			if err != nil {
				return errors.Wrapf(err, "archive %s", day.Format(dayLayout))
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// window returns the n UTC days ending just before before, oldest first.
func window(before time.Time, n int) []time.Time {
	days := make([]time.Time, n)
	for i := range n {
		days[i] = before.AddDate(0, 0, i-n)
	}
	return days
}

func archivePath(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("orders-%s.jsonl.gz", day.Format(dayLayout)))
}

// archiveDay writes the orders created on day and reads the file back to
// confirm it holds every one of them. Days without orders produce no file.
func archiveDay(ctx context.Context, src Source, dir string, day time.Time) (int, error) {
	orders, err := src.ListCreatedBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	path := archivePath(dir, day)
	if err := writeFile(path, orders); err != nil {
		return 0, err
	}
	n, err := countFile(ctx, path)
	if err != nil {
		return 0, errors.Wrap(err, "verify")
	}
	if n != len(orders) {
		return 0, errors.Errorf("verify %s: wrote %d orders, read %d", path, len(orders), n)
	}

	slog.Info("day archived",
		slog.String("day", day.Format(dayLayout)),
		slog.Int("orders", n),
		slog.String("path", path),
	)
	return n, nil
}

// writeFile replaces path atomically with one JSON order per line.
func writeFile(path string, orders []order.Order) (rerr error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	defer func() {
		if rerr != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	gz := pgzip.NewWriter(f)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	for i := range orders {
		e.Reset()
		codec.EncodeOrder(e, &orders[i])
		e.RawStr("\n")
		if _, err := gz.Write(e.Bytes()); err != nil {
			return errors.Wrapf(err, "write order %s", orders[i].Code)
		}
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "flush gzip")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close file")
	}
	return os.Rename(tmp, path)
}

// countFile decodes every line of an archive file.
func countFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var n int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := codec.UnmarshalOrder(scanner.Bytes()); err != nil {
			return n, errors.Wrapf(err, "line %d", n+1)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}
