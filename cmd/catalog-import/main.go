// Command catalog-import bulk-inserts products from gzip-compressed JSONL
// dumps, skipping slugs the catalog already has.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz product dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", 1_000_000, "expected number of imported products, sizes the Bloom filter")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, expected); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, expected uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list dumps")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}
	slog.Info("importing", slog.Int("files", len(files)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := newImporter(postgres.NewProductRepository(pool), expected).run(ctx, files)
	slog.Info("import summary",
		slog.Int("read", st.read),
		slog.Int("inserted", st.inserted),
		slog.Int("existing", st.existing),
		slog.Int("duplicates", st.duplicates),
		slog.Int("invalid", st.invalid),
	)
	return err
}
