package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/lojinha/storefront/internal/db/dbtest"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
categories:
  - name: Canecas
    slug: canecas
    featured: true
products:
  - title: Caneca Azul
    slug: caneca-azul
    category: canecas
    price: "25,00"
    stock: 10
  - title: Adesivo
    slug: adesivo
    price: "4.90"
    active: false
`

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(catalogYAML))
	require.NoError(t, err)
	require.Len(t, c.Categories, 1)
	require.Len(t, c.Products, 2)
	assert.True(t, c.Categories[0].Featured)
	assert.Equal(t, "canecas", c.Products[0].Category)
	require.NotNil(t, c.Products[1].Active)
	assert.False(t, *c.Products[1].Active)

	_, err = Load(strings.NewReader("products:\n  - titel: typo\n"))
	assert.Error(t, err)

	empty, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Products)
}

func TestApply(t *testing.T) {
	database := dbtest.New(t)
	m := metrics.NewNoop()
	categories := services.NewCategoryService(database, m)
	products := services.NewProductService(database, m, 6, 1000)
	ctx := context.Background()

	c, err := Load(strings.NewReader(catalogYAML))
	require.NoError(t, err)

	res, err := Apply(ctx, categories, products, c)
	require.NoError(t, err)
	assert.Equal(t, Result{CategoriesCreated: 1, ProductsCreated: 2}, res)

	all, err := products.ListAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	page, err := products.ListProducts(ctx, models.ProductFilter{CategorySlug: "canecas"})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, int64(2500), page.Products[0].PriceCents)

	// seeding again changes nothing
	res, err = Apply(ctx, categories, products, c)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 3}, res)
}

func TestApplyRejectsBadEntries(t *testing.T) {
	database := dbtest.New(t)
	m := metrics.NewNoop()
	categories := services.NewCategoryService(database, m)
	products := services.NewProductService(database, m, 6, 1000)

	_, err := Apply(context.Background(), categories, products, &Catalog{
		Products: []Product{{Title: "X", Slug: "x", Price: "abc"}},
	})
	assert.ErrorContains(t, err, "invalid price")

	_, err = Apply(context.Background(), categories, products, &Catalog{
		Products: []Product{{Title: "X", Slug: "x", Price: "1", Category: "nada"}},
	})
	assert.ErrorContains(t, err, "unknown category")
}
