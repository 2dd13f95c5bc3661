package storefront

import (
	"strconv"
	"sync"

	"github.com/angelmondragon/storefront/internal/cartstate"
)

// Badge is the header cart button: it only shows the total unit count.
type Badge struct {
	mu          sync.RWMutex
	count       int
	version     uint64
	unsubscribe func()
}

// NewBadge seeds the badge from the manager's current snapshot and keeps it
// in step with every later change.
func NewBadge(mgr *cartstate.Manager) *Badge {
	b := &Badge{}
	b.apply(mgr.Snapshot())
	b.unsubscribe = mgr.Subscribe(b)
	return b
}

func (b *Badge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Label is the text rendered on the button; empty when the cart is.
func (b *Badge) Label() string {
	count := b.Count()
	if count == 0 {
		return ""
	}
	return strconv.Itoa(count)
}

func (b *Badge) CartChanged(s cartstate.Snapshot) { b.apply(s) }

func (b *Badge) CartNotice(cartstate.Notice) {}

func (b *Badge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

func (b *Badge) apply(s cartstate.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.Version < b.version {
		return
	}
	b.version = s.Version
	b.count = s.TotalItems()
}
