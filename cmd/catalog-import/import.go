package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

const (
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// catalog is the subset of the product repository the importer needs.
type catalog interface {
	Slugs(ctx context.Context) ([]string, error)
	ExistingSlugs(ctx context.Context, slugs []string) ([]string, error)
	CreateBatch(ctx context.Context, products []product.Product) error
}

// stats counts what happened to the records of an import.
type stats struct {
	read       int
	invalid    int
	duplicates int
	existing   int
	inserted   int
}

// importer inserts products from gzip-compressed JSONL dumps. Known slugs
// are loaded into a Bloom filter; only filter hits are confirmed against
// the database, everything else is known to be new.
type importer struct {
	repo     catalog
	expected uint
	now      func() time.Time

	filter *bloom.BloomFilter
	seen   map[string]struct{}
	batch  []product.Product
	maybe  []product.Product
	stats  stats
}

func newImporter(repo catalog, expected uint) *importer {
	return &importer{
		repo:     repo,
		expected: expected,
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
}

// run imports every file. Files are decompressed and parsed concurrently;
// a single writer dedupes and inserts in batches.
func (im *importer) run(ctx context.Context, files []string) (stats, error) {
	known, err := im.repo.Slugs(ctx)
	if err != nil {
		return im.stats, errors.Wrap(err, "load known slugs")
	}
	im.filter = bloom.NewWithEstimates(max(uint(len(known))+im.expected, 1), bloomFPR)
	for _, s := range known {
		im.filter.AddString(s)
	}
	slog.Info("bloom filter built", slog.Int("known_slugs", len(known)))

	records := make(chan product.Record, batchSize)
	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	for _, f := range files {
		readers.Go(func() error {
			return readFile(rctx, f, records)
		})
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})
	g.Go(func() error {
		for r := range records {
			if err := im.add(gctx, r); err != nil {
				return err
			}
		}
		return im.flush(gctx)
	})

	if err := g.Wait(); err != nil {
		return im.stats, err
	}
	return im.stats, nil
}

func (im *importer) add(ctx context.Context, r product.Record) error {
	im.stats.read++
	if im.stats.read%progressEvery == 0 {
		slog.Info("import progress", slog.Int("read", im.stats.read), slog.Int("inserted", im.stats.inserted))
	}

	// Slugs are stored lowercased.
	key := strings.ToLower(r.Slug)
	if _, dup := im.seen[key]; dup {
		im.stats.duplicates++
		return nil
	}
	p, err := r.Product(im.now())
	if err != nil {
		im.stats.invalid++
		slog.Warn("skipping invalid product", slog.String("slug", r.Slug), slog.String("error", err.Error()))
		return nil
	}
	im.seen[key] = struct{}{}

	if im.filter.TestString(p.Slug) {
		im.maybe = append(im.maybe, *p)
		if len(im.maybe) >= batchSize {
			return im.confirm(ctx)
		}
		return nil
	}
	im.batch = append(im.batch, *p)
	if len(im.batch) >= batchSize {
		return im.insert(ctx)
	}
	return nil
}

// confirm moves filter hits that are not actually in the catalog into the
// insert batch.
func (im *importer) confirm(ctx context.Context) error {
	if len(im.maybe) == 0 {
		return nil
	}
	slugs := make([]string, len(im.maybe))
	for i, p := range im.maybe {
		slugs[i] = p.Slug
	}
	existing, err := im.repo.ExistingSlugs(ctx, slugs)
	if err != nil {
		return errors.Wrap(err, "confirm slugs")
	}
	found := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		found[s] = struct{}{}
	}
	for _, p := range im.maybe {
		if _, ok := found[p.Slug]; ok {
			im.stats.existing++
			continue
		}
		im.batch = append(im.batch, p)
	}
	im.maybe = im.maybe[:0]

	if len(im.batch) >= batchSize {
		return im.insert(ctx)
	}
	return nil
}

func (im *importer) insert(ctx context.Context) error {
	if len(im.batch) == 0 {
		return nil
	}
	if err := im.repo.CreateBatch(ctx, im.batch); err != nil {
		return errors.Wrap(err, "insert batch")
	}
	im.stats.inserted += len(im.batch)
	im.batch = im.batch[:0]
	return nil
}

func (im *importer) flush(ctx context.Context) error {
	if err := im.confirm(ctx); err != nil {
		return err
	}
	return im.insert(ctx)
}

// readFile streams a gzip-compressed JSONL file into out.
func readFile(ctx context.Context, path string, out chan<- product.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	if err := decodeLines(ctx, gz, out); err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return nil
}

// decodeLines decodes one Record per non-empty line. Malformed lines are
// logged and skipped.
func decodeLines(ctx context.Context, r io.Reader, out chan<- product.Record) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec product.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			slog.Warn("skipping malformed line", slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
