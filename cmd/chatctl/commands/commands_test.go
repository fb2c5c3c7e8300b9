package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<div class="product-card">
  <a class="product-link" href="/p/puma-smash"><span class="product-title">Puma Smash V2</span></a>
  <span class="product-brand">Puma</span>
  <span class="product-price">Rs. 2,499</span>
  <span class="product-discount">40% off</span>
  <span class="product-rating">4.1</span>
  <span class="product-rating-count">(812)</span>
</div>
<div class="product-card">
  <a class="product-link" href="/p/campus-north"><span class="product-title">Campus North Plus</span></a>
  <span class="product-brand">Campus</span>
  <span class="product-price">Rs. 999</span>
</div>
</body></html>`

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestScrapeThenLoadProducts(t *testing.T) {
	dir := t.TempDir()
	pages := filepath.Join(dir, "pages")
	require.NoError(t, os.Mkdir(pages, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "shoes.html"), []byte(listingPage), 0o644))

	csvPath := filepath.Join(dir, "products.csv")
	out := run(t, "scrape", "--input", pages, "--out", csvPath, "--base-url", "https://shop.example")
	assert.Contains(t, out, "Wrote 2 products")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://shop.example/p/puma-smash")

	t.Setenv("CHATBOT_SQLITE_PATH", filepath.Join(dir, "shop.db"))

	out = run(t, "load-products", "--file", csvPath)
	assert.Contains(t, out, "Loaded 2 products (2 in table)")

	out = run(t, "load-products", "--file", csvPath)
	assert.Contains(t, out, "Loaded 2 products (4 in table)")
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest-faq", "load-products", "scrape", "eval-routes", "ask"} {
		assert.Contains(t, names, want)
	}
}
