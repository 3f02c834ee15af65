package marketplace

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"vehicle-insights/internal/models"
	"vehicle-insights/internal/telemetry"
)

// DefaultListingCount is how many listings Generate produces by default.
const DefaultListingCount = 20

// listingMaxAge bounds how far back CreatedAt may fall.
const listingMaxAge = 30 * 24 * time.Hour

// Generate creates n random listings with sample records from gen.
func Generate(gen *telemetry.Generator, n int, now time.Time) []models.MarketplaceListing {
	if n <= 0 {
		n = DefaultListingCount
	}

	listings := make([]models.MarketplaceListing, 0, n)
	for i := 0; i < n; i++ {
		price := 0.5 + gen.Float64()*9.5
		age := time.Duration(gen.Float64() * float64(listingMaxAge))

		listings = append(listings, models.MarketplaceListing{
			ID:        fmt.Sprintf("listing_%d", i),
			Seller:    "0x" + strconv.FormatInt(int64(gen.Intn(math.MaxInt32)), 36),
			DataType:  models.DataTypes[gen.Intn(len(models.DataTypes))],
			Price:     math.Round(price*100) / 100,
			Rating:    gen.Intn(5) + 1,
			Reviews:   gen.Intn(100),
			Sample:    gen.Record(),
			CreatedAt: now.Add(-age).UTC(),
		})
	}
	return listings
}

// Sort keys.
const (
	SortPrice  = "price"
	SortDate   = "date"
	SortRating = "rating"
)

// Query filters and orders listings.
type Query struct {
	// Search matches a case-insensitive substring of the data type.
	Search string

	// Category keeps only listings of exactly this data type.
	Category string

	// SortBy is one of SortPrice, SortDate or SortRating. Empty means
	// SortDate.
	SortBy string

	// Ascending flips the default descending order.
	Ascending bool
}

// Validate rejects unknown sort keys.
func (q Query) Validate() error {
	switch q.SortBy {
	case "", SortPrice, SortDate, SortRating:
		return nil
	}
	return fmt.Errorf("unknown sort key %q", q.SortBy)
}

// Apply returns the listings matching q in the requested order. The
// input slice is left untouched.
func Apply(listings []models.MarketplaceListing, q Query) []models.MarketplaceListing {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.MarketplaceListing, 0, len(listings))
	for _, l := range listings {
		if search != "" && !strings.Contains(strings.ToLower(l.DataType), search) {
			continue
		}
		if q.Category != "" && l.DataType != q.Category {
			continue
		}
		out = append(out, l)
	}

	less := func(a, b models.MarketplaceListing) bool {
		switch q.SortBy {
		case SortPrice:
			return a.Price < b.Price
		case SortRating:
			return a.Rating < b.Rating
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

// Categories lists the distinct data types in first-seen order.
func Categories(listings []models.MarketplaceListing) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range listings {
		if _, ok := seen[l.DataType]; ok {
			continue
		}
		seen[l.DataType] = struct{}{}
		out = append(out, l.DataType)
	}
	return out
}
