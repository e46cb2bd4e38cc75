package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/bonafide55/shop-api/internal/catalog"
	"github.com/bonafide55/shop-api/internal/obs"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtures struct {
	Categories []categoryFixture `yaml:"categories"`
	Products   []productFixture  `yaml:"products"`
	Rules      []ruleFixture     `yaml:"discount_rules"`
}

type categoryFixture struct {
	Name   string `yaml:"name"`
	Slug   string `yaml:"slug"`
	Parent string `yaml:"parent"`
}

type productFixture struct {
	Name         string          `yaml:"name"`
	Slug         string          `yaml:"slug"`
	SKU          string          `yaml:"sku"`
	Category     string          `yaml:"category"`
	Description  string          `yaml:"description"`
	Price        decimal.Decimal `yaml:"price"`
	Availability string          `yaml:"availability"`
	Stock        int             `yaml:"stock"`
}

type ruleFixture struct {
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"`
	MinQuantity int             `yaml:"min_quantity"`
	Percentage  decimal.Decimal `yaml:"percentage"`
	Product     string          `yaml:"product"`
	Category    string          `yaml:"category"`
}

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	path := flag.String("file", "", "fixtures file (defaults to the embedded set)")
	flag.Parse()

	raw := defaultFixtures
	if *path != "" {
		b, err := os.ReadFile(*path)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *path).Msg("read fixtures")
		}
		raw = b
	}
	var fx fixtures
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		logger.Fatal().Err(err).Msg("parse fixtures")
	}

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}
	defer conn.Close(ctx)

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error { return seed(ctx, tx, fx) })
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := invalidateCache(ctx, redisURL, fx); err != nil {
			logger.Warn().Err(err).Msg("catalog cache not invalidated")
		}
	}
	logger.Info().
		Int("categories", len(fx.Categories)).
		Int("products", len(fx.Products)).
		Int("discount_rules", len(fx.Rules)).
		Msg("seeding completed")
}

func seed(ctx context.Context, tx pgx.Tx, fx fixtures) error {
	categories := map[string]int64{}
	for _, c := range fx.Categories {
		var parent *int64
		if c.Parent != "" {
			id, ok := categories[c.Parent]
			if !ok {
				return fmt.Errorf("category %s: parent %s must be listed first", c.Slug, c.Parent)
			}
			parent = &id
		}
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO categories (name, slug, parent_id) VALUES ($1, $2, $3)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id
RETURNING id`, c.Name, c.Slug, parent).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert category %s: %w", c.Slug, err)
		}
		categories[c.Slug] = id
	}

	products := map[string]int64{}
	for _, p := range fx.Products {
		availability := p.Availability
		if availability == "" {
			availability = "IN_STOCK"
		}
		var sku *string
		if p.SKU != "" {
			sku = &p.SKU
		}
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO products (name, slug, sku, category_id, description, regular_price, availability_status, stock_quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, regular_price = EXCLUDED.regular_price,
  category_id = EXCLUDED.category_id, availability_status = EXCLUDED.availability_status,
  stock_quantity = EXCLUDED.stock_quantity
RETURNING id`, p.Name, p.Slug, sku, lookup(categories, p.Category), p.Description, p.Price, availability, p.Stock).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Slug, err)
		}
		products[p.Slug] = id
	}

	for _, r := range fx.Rules {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM discount_rules WHERE name = $1)`, r.Name).Scan(&exists); err != nil {
			return fmt.Errorf("check rule %s: %w", r.Name, err)
		}
		if exists {
			continue
		}
		_, err := tx.Exec(ctx, `
INSERT INTO discount_rules (name, rule_type, min_quantity, discount_percentage, product_id, category_id)
VALUES ($1, $2, $3, $4, $5, $6)`,
			r.Name, r.Type, r.MinQuantity, r.Percentage, lookup(products, r.Product), lookup(categories, r.Category))
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", r.Name, err)
		}
	}
	return nil
}

func lookup(ids map[string]int64, slug string) *int64 {
	if slug == "" {
		return nil
	}
	id, ok := ids[slug]
	if !ok {
		return nil
	}
	return &id
}

// invalidateCache drops cached category and product snapshots so the API
// serves the seeded rows right away.
func invalidateCache(ctx context.Context, redisURL string, fx fixtures) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	slugs := make([]string, 0, len(fx.Products))
	for _, p := range fx.Products {
		slugs = append(slugs, p.Slug)
	}
	return catalog.NewCache(rdb, time.Minute).Invalidate(ctx, slugs...)
}
