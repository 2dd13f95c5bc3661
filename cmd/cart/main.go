package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const settleTimeout = 30 * time.Second

type options struct {
	cmd     string
	product string
	name    string
	price   string
	image   string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "show", "cart command: show|add|inc|dec|remove")
	flag.StringVar(&opts.product, "product", "", "product id")
	flag.StringVar(&opts.name, "name", "", "product name (for add)")
	flag.StringVar(&opts.price, "price", "", "unit price (for add)")
	flag.StringVar(&opts.image, "image", "", "image url (for add)")
	flag.Parse()

	logg := logger.New(logger.Options{
		ServiceName: "cart-cli",
		Level:       logger.ParseLevel(os.Getenv(config.EnvLogLevel)),
		Format:      os.Getenv(config.EnvLogFormat),
		Output:      os.Stderr,
	})

	cfg, err := config.LoadCartService()
	if err != nil {
		logg.Error(context.Background(), "failed to load cart service config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfg, opts, logg, os.Stdout); err != nil {
		logg.Error(logg.WithField(ctx, "cmd", opts.cmd), "cart command failed", err)
		os.Exit(1)
	}
}

// run opens the cart against the configured service, applies one command
// and prints the reconciled cart once every save has settled.
func run(ctx context.Context, cfg config.CartServiceConfig, opts options, logg *logger.Logger, out io.Writer) error {
	sf, err := storefront.NewFromConfig(cfg, logg, nil)
	if err != nil {
		return err
	}
	defer sf.Close()

	if _, err := sf.Overlay.Open(ctx); err != nil {
		return err
	}

	id := cartstate.ProductID(opts.product)
	if opts.cmd != "show" && id == "" {
		return errors.New("missing -product")
	}
	switch opts.cmd {
	case "show":
	case "add":
		price, err := decimal.NewFromString(opts.price)
		if err != nil {
			return fmt.Errorf("invalid -price %q: %w", opts.price, err)
		}
		_, err = sf.AddToCart(ctx, storefront.Product{ID: id, Name: opts.name, Price: price, Image: opts.image})
		if err != nil {
			return err
		}
	case "inc":
		if _, err := sf.Overlay.Increment(id); err != nil {
			return err
		}
	case "dec":
		if _, err := sf.Overlay.Decrement(id); err != nil {
			return err
		}
	case "remove":
		if _, err := sf.Overlay.Remove(id); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}

	settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := sf.Cart.Flush(settleCtx); err != nil {
		return err
	}
	return printView(out, sf.Overlay.View())
}

func printView(out io.Writer, view storefront.OverlayView) error {
	if view.Warning != "" {
		if _, err := fmt.Fprintln(out, "warning:", view.Warning); err != nil {
			return err
		}
	}
	if view.Empty {
		_, err := fmt.Fprintln(out, "cart is empty")
		return err
	}
	for _, line := range view.Lines {
		if _, err := fmt.Fprintf(out, "%s\t%s\tx%d\t%s\n", line.ProductID, line.Name, line.Quantity, line.Subtotal); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, "subtotal:", view.Subtotal)
	return err
}
