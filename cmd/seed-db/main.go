package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	"github.com/xenking/kart-storefront/internal/token"
)

var sampleUsers = []user.User{
	{Name: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin},
	{Name: "Jane Doe", Email: "jane@example.com", Role: auth.RoleUser},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		tokenSecret  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&tokenSecret, "token-secret", "", "secret to sign the admin token with (or KART_AUTH_TOKEN_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if tokenSecret == "" {
		tokenSecret = os.Getenv("KART_AUTH_TOKEN_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, tokenSecret); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, tokenSecret string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	ids, err := seedUsers(ctx, postgres.NewUserRepository(pool))
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if tokenSecret == "" {
		slog.Warn("no token secret given, skipping admin token")
		return nil
	}
	return printAdminToken(ids[0], tokenSecret)
}

// seedProducts inserts the products whose slugs are not in the catalog yet,
// so the seed can be rerun.
func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var records []product.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slugs := make([]string, len(records))
	for i, r := range records {
		slugs[i] = r.Slug
	}
	existing, err := repo.ExistingSlugs(ctx, slugs)
	if err != nil {
		return err
	}

	now := time.Now()
	products := make([]product.Product, 0, len(records))
	for i, r := range records {
		if slices.Contains(existing, r.Slug) {
			slog.Info("product exists, skipping", slog.String("slug", r.Slug))
			continue
		}
		// Spread creation times so "newest" ordering follows the file.
		p, err := r.Product(now.Add(time.Duration(i-len(records)) * time.Minute))
		if err != nil {
			return errors.Wrapf(err, "product %s", r.Slug)
		}
		products = append(products, *p)
	}

	if len(products) == 0 {
		return nil
	}
	if err := repo.CreateBatch(ctx, products); err != nil {
		return err
	}
	slog.Info("inserted products", slog.Int("count", len(products)))
	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository) ([]string, error) {
	ids := make([]string, len(sampleUsers))
	for i := range sampleUsers {
		u := sampleUsers[i]
		id, err := repo.Upsert(ctx, &u)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		slog.Info("upserted user", slog.String("email", u.Email), slog.String("role", string(u.Role)))
	}
	return ids, nil
}

func printAdminToken(adminID, secret string) error {
	m, err := token.NewManager(secret, 0)
	if err != nil {
		return err
	}
	tok, err := m.Issue(adminID, auth.RoleAdmin)
	if err != nil {
		return errors.Wrap(err, "issue admin token")
	}
	slog.Info("admin token issued", slog.String("user_id", adminID))
	fmt.Println(tok)
	return nil
}
