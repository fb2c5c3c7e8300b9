package models

import (
	"fmt"
	"strings"
	"time"
)

// Product is one row of the product catalogue. Discount is a fraction, so
// 35 percent off is 0.35.
type Product struct {
	ProductLink  string
	Title        string
	Brand        string
	Price        int
	Discount     float64
	AvgRating    float64
	TotalRatings int
}

type FAQRecord struct {
	ID       string
	Question string
	Answer   string
}

type ChatRecord struct {
	ID        string
	Query     string
	Route     string
	Response  string
	LatencyMS int64
	CreatedAt time.Time
}

// Row is a query result row with columns kept in select order.
type Row struct {
	Columns []string
	Values  []any
}

// String renders the row as "col: value, col: value".
func (r Row) String() string {
	var b strings.Builder
	for i, col := range r.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", col, r.Values[i])
	}
	return b.String()
}
