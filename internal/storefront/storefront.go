package storefront

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/cartclient"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// Product is the catalog data a surface needs to add an item.
type Product struct {
	ID    cartstate.ProductID
	Name  string
	Price decimal.Decimal
	Image string
}

// Storefront wires the badge and the overlay to one shared cart manager.
type Storefront struct {
	Cart    *cartstate.Manager
	Badge   *Badge
	Overlay *Overlay
}

// New attaches both surfaces to mgr.
func New(mgr *cartstate.Manager, logg *logger.Logger) *Storefront {
	return &Storefront{
		Cart:    mgr,
		Badge:   NewBadge(mgr),
		Overlay: NewOverlay(mgr, logg),
	}
}

// NewFromConfig builds the manager against the configured cart service.
func NewFromConfig(cfg config.CartServiceConfig, logg *logger.Logger, recorder *metrics.CartMetrics) (*Storefront, error) {
	if strings.TrimSpace(cfg.SessionID) == "" {
		cfg.SessionID = uuid.NewString()
	}
	client, err := cartclient.NewFromConfig(cfg, logg)
	if err != nil {
		return nil, err
	}
	mgr, err := cartstate.NewManager(cartstate.ManagerParams{
		Remote:        client,
		Logger:        logg,
		Metrics:       recorder,
		FailurePolicy: cartstate.FailurePolicy(cfg.NormalizedFailurePolicy()),
		SessionID:     cfg.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return New(mgr, logg), nil
}

// AddToCart adds one unit and opens the overlay on the reconciled cart.
func (s *Storefront) AddToCart(ctx context.Context, p Product) (OverlayView, error) {
	if _, err := s.Cart.AddLine(cartstate.Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageURL:  p.Image,
	}); err != nil {
		return s.Overlay.View(), err
	}
	return s.Overlay.Open(ctx)
}

// Close detaches the surfaces and stops the manager.
func (s *Storefront) Close() {
	s.Badge.Close()
	s.Overlay.Close()
	s.Cart.Close()
}
