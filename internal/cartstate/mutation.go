package cartstate

import "github.com/shopspring/decimal"

type MutationKind string

const (
	MutationAdd            MutationKind = "add"
	MutationUpdateQuantity MutationKind = "update_quantity"
	MutationRemove         MutationKind = "remove"
)

// Mutation is one user intent, tagged with the sequence number it was
// applied under locally. IdempotencyKey is unique per mutation and per
// manager instance, so the cart service can deduplicate retried additive
// calls without confusing two managers that share a session.
type Mutation struct {
	Seq            uint64
	Kind           MutationKind
	ProductID      ProductID
	Name           string
	UnitPrice      decimal.Decimal
	ImageURL       string
	Delta          int
	IdempotencyKey string
}

// apply returns a new slice; the input is never modified.
func (m Mutation) apply(lines []Line) []Line {
	out := cloneLines(lines)
	idx := indexOf(out, m.ProductID)

	switch m.Kind {
	case MutationAdd:
		if idx >= 0 {
			out[idx].Quantity = AddQuantity(out[idx].Quantity, 1)
			return out
		}
		return append(out, Line{
			ProductID: m.ProductID,
			Name:      m.Name,
			UnitPrice: m.UnitPrice,
			ImageURL:  m.ImageURL,
			Quantity:  1,
		})

	case MutationUpdateQuantity:
		if idx < 0 {
			return out
		}
		next := AddQuantity(out[idx].Quantity, m.Delta)
		if next <= 0 {
			return append(out[:idx], out[idx+1:]...)
		}
		out[idx].Quantity = next
		return out

	case MutationRemove:
		if idx < 0 {
			return out
		}
		return append(out[:idx], out[idx+1:]...)
	}
	return out
}

func replay(base []Line, ops []*pendingOp) []Line {
	lines := cloneLines(base)
	for _, op := range ops {
		lines = op.mutation.apply(lines)
	}
	return lines
}
