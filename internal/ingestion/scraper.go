package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

// Selectors locate product fields inside a saved listing page. Every field
// selector is evaluated relative to one Item match.
type Selectors struct {
	Item         string
	Link         string
	Title        string
	Brand        string
	Price        string
	Discount     string
	Rating       string
	TotalRatings string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Item:         "div.product-card",
		Link:         "a.product-link",
		Title:        ".product-title",
		Brand:        ".product-brand",
		Price:        ".product-price",
		Discount:     ".product-discount",
		Rating:       ".product-rating",
		TotalRatings: ".product-rating-count",
	}
}

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

type Scraper struct {
	base      *url.URL
	selectors Selectors
}

// NewScraper returns a scraper that resolves relative product links against
// baseURL. An empty baseURL leaves links as found.
func NewScraper(baseURL string, selectors Selectors) (*Scraper, error) {
	s := &Scraper{selectors: selectors}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		s.base = u
	}
	return s, nil
}

// ParseListing extracts products from one listing page. Cards without a
// title are skipped.
func (s *Scraper) ParseListing(r io.Reader) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var products []models.Product
	doc.Find(s.selectors.Item).Each(func(_ int, card *goquery.Selection) {
		title := text(card, s.selectors.Title)
		if title == "" {
			return
		}

		link, _ := card.Find(s.selectors.Link).First().Attr("href")

		products = append(products, models.Product{
			ProductLink:  s.resolve(link),
			Title:        title,
			Brand:        text(card, s.selectors.Brand),
			Price:        int(firstNumber(text(card, s.selectors.Price))),
			Discount:     firstNumber(text(card, s.selectors.Discount)) / 100,
			AvgRating:    firstNumber(text(card, s.selectors.Rating)),
			TotalRatings: int(firstNumber(text(card, s.selectors.TotalRatings))),
		})
	})

	return products, nil
}

// ScrapeDir parses every .html file in dir, in file name order.
func (s *Scraper) ScrapeDir(dir string) ([]models.Product, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	sort.Strings(matches)

	var all []models.Product
	for _, path := range matches {
		products, err := s.parseFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Listing page parsed", zap.String("file", path), zap.Int("products", len(products)))
		all = append(all, products...)
	}

	return all, nil
}

func (s *Scraper) parseFile(path string) ([]models.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	products, err := s.ParseListing(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return products, nil
}

func (s *Scraper) resolve(link string) string {
	if link == "" || s.base == nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return s.base.ResolveReference(ref).String()
}

// WriteCSV writes products in the column layout ProductLoader reads.
func WriteCSV(w io.Writer, products []models.Product) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(productColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, p := range products {
		record := []string{
			p.ProductLink,
			p.Title,
			p.Brand,
			strconv.Itoa(p.Price),
			strconv.FormatFloat(p.Discount, 'f', -1, 64),
			strconv.FormatFloat(p.AvgRating, 'f', -1, 64),
			strconv.Itoa(p.TotalRatings),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func text(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(sel.Find(selector).First().Text()), " ")
}

// firstNumber returns the first number in s, ignoring thousands separators
// and currency symbols. "Rs. 1,104" gives 1104 and "35% off" gives 35.
func firstNumber(s string) float64 {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
