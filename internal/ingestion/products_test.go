package ingestion

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommerce-chatbot/backend/internal/storage/sqlite"
)

const productCSV = `product_link,title,brand,price,discount,avg_rating,total_ratings
https://shop.example/p/1,Campus Women Running Shoes,Campus,1104,0.35,4.4,3200
https://shop.example/p/2,Puma Smash V2,PUMA,2499.0,0.4,4.1,870
https://shop.example/p/3,Nike Revolution 6,Nike,3695,0.5,,
`

func newProductStore(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ecommerce_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProductLoader_AppendsRows(t *testing.T) {
	store := newProductStore(t)
	loader := NewProductLoader(store)
	ctx := context.Background()
	path := writeFile(t, "ecommerce_data_final.csv", productCSV)

	n, err := loader.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = loader.Load(ctx, path)
	require.NoError(t, err)

	count, err := store.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	rows, err := store.QueryRows(ctx, "SELECT * FROM product WHERE brand LIKE '%puma%'", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2499), rows[0].Values[3])
	assert.Equal(t, 0.4, rows[0].Values[4])
}

func TestProductLoader_Errors(t *testing.T) {
	loader := NewProductLoader(newProductStore(t))
	ctx := context.Background()

	_, err := loader.Load(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = loader.Load(ctx, writeFile(t, "bad.csv", "title,brand\nx,y\n"))
	assert.ErrorContains(t, err, "missing columns")

	bad := strings.Replace(productCSV, "3695", "free", 1)
	_, err = loader.Load(ctx, writeFile(t, "bad.csv", bad))
	assert.ErrorContains(t, err, "line 4: price")
}

const listingHTML = `<html><body>
<div class="product-card">
  <a class="product-link" href="/p/campus-runner">
    <span class="product-title"> Campus Women
      Running Shoes </span>
  </a>
  <span class="product-brand">Campus</span>
  <span class="product-price">Rs. 1,104</span>
  <span class="product-discount">35% off</span>
  <span class="product-rating">4.4</span>
  <span class="product-rating-count">(3,200 ratings)</span>
</div>
<div class="product-card">
  <a class="product-link" href="https://other.example/p/puma">
    <span class="product-title">Puma Smash V2</span>
  </a>
  <span class="product-brand">PUMA</span>
  <span class="product-price">Rs. 2,499</span>
</div>
<div class="product-card"><span class="product-brand">No title</span></div>
</body></html>`

func TestScraper_ParseListing(t *testing.T) {
	s, err := NewScraper("https://shop.example/search?q=shoes", DefaultSelectors())
	require.NoError(t, err)

	products, err := s.ParseListing(strings.NewReader(listingHTML))
	require.NoError(t, err)
	require.Len(t, products, 2)

	p := products[0]
	assert.Equal(t, "https://shop.example/p/campus-runner", p.ProductLink)
	assert.Equal(t, "Campus Women Running Shoes", p.Title)
	assert.Equal(t, "Campus", p.Brand)
	assert.Equal(t, 1104, p.Price)
	assert.InDelta(t, 0.35, p.Discount, 1e-9)
	assert.InDelta(t, 4.4, p.AvgRating, 1e-9)
	assert.Equal(t, 3200, p.TotalRatings)

	assert.Equal(t, "https://other.example/p/puma", products[1].ProductLink)
	assert.Zero(t, products[1].Discount)
}

func TestScraper_OutputLoadsIntoStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page1.html"), []byte(listingHTML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	s, err := NewScraper("https://shop.example", DefaultSelectors())
	require.NoError(t, err)

	products, err := s.ScrapeDir(dir)
	require.NoError(t, err)
	require.Len(t, products, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, products))
	assert.True(t, strings.HasPrefix(buf.String(), "product_link,title,brand,price,discount,avg_rating,total_ratings\n"))

	store := newProductStore(t)
	n, err := NewProductLoader(store).Load(context.Background(), writeFile(t, "scraped.csv", buf.String()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFirstNumber(t *testing.T) {
	assert.Equal(t, 1104.0, firstNumber("Rs. 1,104"))
	assert.Equal(t, 35.0, firstNumber("35% off"))
	assert.Equal(t, 4.4, firstNumber("4.4 out of 5"))
	assert.Zero(t, firstNumber("n/a"))
}
