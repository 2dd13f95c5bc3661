package storefront

import (
	"context"
	"sync"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const currencyPrefix = "Rs."

// OverlayLine is one rendered cart row.
type OverlayLine struct {
	ProductID string
	Name      string
	Image     string
	Quantity  int
	Subtotal  string
}

// OverlayView is everything the cart panel renders.
type OverlayView struct {
	Open     bool
	Empty    bool
	Lines    []OverlayLine
	Subtotal string
	Warning  string
}

// Overlay is the slide-in cart panel. It reads and mutates the same manager
// as the badge, so both always render the same snapshot.
type Overlay struct {
	mgr  *cartstate.Manager
	logg *logger.Logger

	mu          sync.RWMutex
	open        bool
	snapshot    cartstate.Snapshot
	warning     string
	unsubscribe func()
}

func NewOverlay(mgr *cartstate.Manager, logg *logger.Logger) *Overlay {
	o := &Overlay{mgr: mgr, logg: logg, snapshot: mgr.Snapshot()}
	o.unsubscribe = mgr.Subscribe(o)
	return o
}

// Open shows the panel and reconciles with the cart service. A failed
// refresh still opens the panel on the last known cart.
func (o *Overlay) Open(ctx context.Context) (OverlayView, error) {
	o.mu.Lock()
	o.open = true
	o.mu.Unlock()

	snap, err := o.mgr.RefreshFromSource(ctx)
	if err != nil {
		if o.logg != nil {
			o.logg.WarnErr(ctx, "cart overlay opened on cached cart", err)
		}
		return o.View(), err
	}
	o.apply(snap)
	return o.View(), nil
}

// Hide closes the panel without touching the cart.
func (o *Overlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = false
}

func (o *Overlay) IsOpen() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.open
}

func (o *Overlay) Increment(productID cartstate.ProductID) (OverlayView, error) {
	return o.mutate(func() (cartstate.Snapshot, error) { return o.mgr.UpdateQuantity(productID, 1) })
}

// Decrement lowers the quantity by one; at zero the row disappears.
func (o *Overlay) Decrement(productID cartstate.ProductID) (OverlayView, error) {
	return o.mutate(func() (cartstate.Snapshot, error) { return o.mgr.UpdateQuantity(productID, -1) })
}

func (o *Overlay) Remove(productID cartstate.ProductID) (OverlayView, error) {
	return o.mutate(func() (cartstate.Snapshot, error) { return o.mgr.RemoveItem(productID) })
}

func (o *Overlay) mutate(op func() (cartstate.Snapshot, error)) (OverlayView, error) {
	snap, err := op()
	if err != nil {
		return o.View(), err
	}
	o.apply(snap)
	return o.View(), nil
}

func (o *Overlay) View() OverlayView {
	o.mu.RLock()
	defer o.mu.RUnlock()

	view := OverlayView{
		Open:     o.open,
		Empty:    o.snapshot.Empty(),
		Lines:    make([]OverlayLine, 0, len(o.snapshot.Lines)),
		Subtotal: currencyPrefix + o.snapshot.DisplayTotal(),
		Warning:  o.warning,
	}
	for _, line := range o.snapshot.Lines {
		view.Lines = append(view.Lines, OverlayLine{
			ProductID: line.ProductID.String(),
			Name:      line.Name,
			Image:     line.ImageURL,
			Quantity:  line.Quantity,
			Subtotal:  currencyPrefix + line.Subtotal().StringFixed(2),
		})
	}
	return view
}

func (o *Overlay) CartChanged(s cartstate.Snapshot) { o.apply(s) }

func (o *Overlay) CartNotice(n cartstate.Notice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warning = n.Message()
}

func (o *Overlay) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

func (o *Overlay) apply(s cartstate.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.Version < o.snapshot.Version {
		return
	}
	if s.Version > o.snapshot.Version {
		o.warning = ""
	}
	o.snapshot = s
}
