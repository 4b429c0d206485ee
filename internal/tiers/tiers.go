// Package tiers maps a sale amount to the number of points a purchase stamp
// is worth. The tables themselves are per-business configuration loaded from
// YAML; the resolution rule is fixed: the highest tier whose minimum amount
// is at or below the sale wins, and tiers sharing a minimum resolve to the
// larger point value.
package tiers

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrNoTier is returned when the sale amount is below every tier minimum.
var ErrNoTier = errors.New("sale amount below every tier minimum")

// Tier is one bracket of a table.
type Tier struct {
	MinAmount decimal.Decimal
	Points    int
}

// Table is an unordered set of tiers.
type Table []Tier

// Resolve picks the points for amount.
func (t Table) Resolve(amount decimal.Decimal) (int, error) {
	found := false
	var best Tier
	for _, tier := range t {
		if tier.MinAmount.GreaterThan(amount) {
			continue
		}
		if !found ||
			tier.MinAmount.GreaterThan(best.MinAmount) ||
			(tier.MinAmount.Equal(best.MinAmount) && tier.Points > best.Points) {
			best = tier
			found = true
		}
	}
	if !found {
		return 0, ErrNoTier
	}
	return best.Points, nil
}

// DefaultTable gives one point for any non-negative sale.
func DefaultTable() Table {
	return Table{{MinAmount: decimal.Zero, Points: 1}}
}

// Catalog holds the default table and per-business overrides.
type Catalog struct {
	Default    Table
	Businesses map[string]Table
}

// NewCatalog returns a catalog that only knows the default table.
func NewCatalog() *Catalog {
	return &Catalog{Default: DefaultTable(), Businesses: map[string]Table{}}
}

// TableFor returns the business's table, falling back to the default.
func (c *Catalog) TableFor(businessID string) Table {
	if t, ok := c.Businesses[businessID]; ok && len(t) > 0 {
		return t
	}
	return c.Default
}

// PointsFor resolves a sale amount against the business's table.
func (c *Catalog) PointsFor(businessID string, amount decimal.Decimal) (int, error) {
	return c.TableFor(businessID).Resolve(amount)
}

type fileTier struct {
	MinAmount string `yaml:"min_amount"`
	Points    int    `yaml:"points"`
}

type file struct {
	Default    []fileTier            `yaml:"default"`
	Businesses map[string][]fileTier `yaml:"businesses"`
}

// LoadFile reads a catalog from a YAML file:
//
//	default:
//	  - {min_amount: "0", points: 1}
//	businesses:
//	  <business id>:
//	    - {min_amount: "10.00", points: 2}
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode tier file: %w", err)
	}

	c := NewCatalog()
	if len(f.Default) > 0 {
		t, err := convert(f.Default)
		if err != nil {
			return nil, fmt.Errorf("default tiers: %w", err)
		}
		c.Default = t
	}
	for id, raw := range f.Businesses {
		t, err := convert(raw)
		if err != nil {
			return nil, fmt.Errorf("tiers for business %s: %w", id, err)
		}
		c.Businesses[id] = t
	}
	return c, nil
}

func convert(raw []fileTier) (Table, error) {
	t := make(Table, 0, len(raw))
	for _, r := range raw {
		minAmount, err := decimal.NewFromString(r.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid min_amount %q: %w", r.MinAmount, err)
		}
		if minAmount.IsNegative() {
			return nil, fmt.Errorf("negative min_amount %s", r.MinAmount)
		}
		if r.Points < 1 || r.Points > 10 {
			return nil, fmt.Errorf("points %d out of range 1-10", r.Points)
		}
		t = append(t, Tier{MinAmount: minAmount, Points: r.Points})
	}
	return t, nil
}
