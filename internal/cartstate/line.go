package cartstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// ProductID is the opaque catalog identifier keying a cart line. It decodes
// from either a JSON string or a JSON number.
type ProductID string

func (id *ProductID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*id = ProductID(strings.TrimSpace(raw))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("product id must be a string or number: %w", err)
	}
	*id = ProductID(number.String())
	return nil
}

func (id ProductID) String() string { return string(id) }

// Line is one product's presence in the cart.
type Line struct {
	ProductID ProductID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	ImageURL  string
}

// Subtotal is UnitPrice * Quantity at full precision.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Aggregates are always derived from lines, never stored.
type Aggregates struct {
	TotalItems int
	TotalPrice decimal.Decimal
}

// Display renders TotalPrice rounded to two decimals.
func (a Aggregates) Display() string {
	return a.TotalPrice.StringFixed(2)
}

// ComputeAggregates sums quantities and line subtotals.
func ComputeAggregates(lines []Line) Aggregates {
	agg := Aggregates{TotalPrice: decimal.Zero}
	for _, line := range lines {
		agg.TotalItems += line.Quantity
		agg.TotalPrice = agg.TotalPrice.Add(line.Subtotal())
	}
	return agg
}

// Snapshot is the cart as observed at one point in time. Version increases
// with every local change so observers can order snapshots.
type Snapshot struct {
	Lines   []Line
	Version uint64
}

func (s Snapshot) Aggregates() Aggregates { return ComputeAggregates(s.Lines) }

func (s Snapshot) TotalItems() int { return ComputeAggregates(s.Lines).TotalItems }

func (s Snapshot) TotalPrice() decimal.Decimal { return ComputeAggregates(s.Lines).TotalPrice }

func (s Snapshot) DisplayTotal() string { return ComputeAggregates(s.Lines).Display() }

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

// Line returns the line for id, if present.
func (s Snapshot) Line(id ProductID) (Line, bool) {
	if idx := indexOf(s.Lines, id); idx >= 0 {
		return s.Lines[idx], true
	}
	return Line{}, false
}

// ValidateLines checks the cart invariants: non-empty unique product ids,
// quantity of at least one and a non-negative unit price on every line.
func ValidateLines(lines []Line) error {
	seen := make(map[ProductID]struct{}, len(lines))
	for i, line := range lines {
		if line.ProductID == "" {
			return invalidLine(i, line, "product id is required")
		}
		if _, dup := seen[line.ProductID]; dup {
			return invalidLine(i, line, "duplicate product id")
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity < 1 {
			return invalidLine(i, line, "quantity must be at least 1")
		}
		if line.UnitPrice.IsNegative() {
			return invalidLine(i, line, "unit price cannot be negative")
		}
	}
	return nil
}

func invalidLine(index int, line Line, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, reason).WithDetails(map[string]any{
		"index":      index,
		"product_id": line.ProductID.String(),
		"quantity":   line.Quantity,
	})
}

// AddQuantity returns current+delta clamped to the int range, so a huge
// positive delta never wraps into a prune.
func AddQuantity(current, delta int) int {
	switch {
	case delta > 0 && current > math.MaxInt-delta:
		return math.MaxInt
	case delta < 0 && current < math.MinInt-delta:
		return math.MinInt
	}
	return current + delta
}

func indexOf(lines []Line, id ProductID) int {
	for i := range lines {
		if lines[i].ProductID == id {
			return i
		}
	}
	return -1
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func linesEqual(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID ||
			a[i].Quantity != b[i].Quantity ||
			a[i].Name != b[i].Name ||
			a[i].ImageURL != b[i].ImageURL ||
			!a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}
