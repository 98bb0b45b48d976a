// Package seed loads catalog fixtures from YAML into the database.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/pricing"
	"github.com/lojinha/storefront/internal/services"
	"gopkg.in/yaml.v3"
)

// Catalog is the YAML seed file layout
type Catalog struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
}

// Category is a seeded category
type Category struct {
	Name     string `yaml:"name"`
	Slug     string `yaml:"slug"`
	Featured bool   `yaml:"featured"`
}

// Product is a seeded product. Price is in currency units ("49,90").
type Product struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Stock       int64  `yaml:"stock"`
	ImageURL    string `yaml:"image_url"`
	Active      *bool  `yaml:"active"`
	Featured    bool   `yaml:"featured"`
}

// Result counts what a seed run did
type Result struct {
	CategoriesCreated int
	ProductsCreated   int
	Skipped           int
}

// Load parses a catalog file
func Load(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// Apply creates the categories and products of c. Entries whose slug already
// exists are left untouched, so seeding twice is harmless.
func Apply(ctx context.Context, categories *services.CategoryService, products *services.ProductService, c *Catalog) (Result, error) {
	var res Result

	for _, cat := range c.Categories {
		_, err := categories.CreateCategory(ctx, models.CategoryInput{Name: cat.Name, Slug: cat.Slug, Featured: cat.Featured})
		switch {
		case errors.Is(err, services.ErrDuplicateSlug):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("failed to seed category %s: %w", cat.Slug, err)
		default:
			res.CategoriesCreated++
		}
	}

	existing, err := categories.ListCategories(ctx)
	if err != nil {
		return res, err
	}
	bySlug := make(map[string]int64, len(existing))
	for _, cat := range existing {
		bySlug[cat.Slug] = cat.ID
	}

	for _, p := range c.Products {
		cents, ok := pricing.ParseCents(p.Price)
		if !ok {
			return res, fmt.Errorf("invalid price %q for product %s", p.Price, p.Slug)
		}

		in := models.ProductInput{
			Title:       p.Title,
			Slug:        p.Slug,
			Description: p.Description,
			PriceCents:  cents,
			ImageURL:    p.ImageURL,
			Stock:       p.Stock,
			Active:      p.Active,
			Featured:    p.Featured,
		}
		if p.Category != "" {
			id, ok := bySlug[p.Category]
			if !ok {
				return res, fmt.Errorf("product %s references unknown category %s", p.Slug, p.Category)
			}
			in.CategoryID = &id
		}

		_, err := products.CreateProduct(ctx, in)
		switch {
		case errors.Is(err, services.ErrDuplicateSlug):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("failed to seed product %s: %w", p.Slug, err)
		default:
			res.ProductsCreated++
		}
	}

	slog.Info("catalog seeded",
		slog.Int("categories", res.CategoriesCreated),
		slog.Int("products", res.ProductsCreated),
		slog.Int("skipped", res.Skipped))
	return res, nil
}
