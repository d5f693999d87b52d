package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/cart"
	"storefront/internal/cartstore"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
)

// withCart restores the cart from the SQLite slot, runs fn and flushes the
// result before returning.
func withCart(ctx context.Context, opts *RootOptions, fn func(e *cart.Engine) error) (err error) {
	store, err := cartstore.OpenSQLite(opts.DB)
	if err != nil {
		return fmt.Errorf("open cart db: %w", err)
	}
	defer store.Close()

	e := cart.New(cart.Options{Store: store, Key: opts.Key, Logger: opts.logger})
	defer func() {
		if cerr := e.Close(ctx); err == nil && cerr != nil {
			err = fmt.Errorf("save cart: %w", cerr)
		}
	}()
	if err := e.Restore(ctx); err != nil {
		opts.logger.Sugar().Warnf("starting with an empty cart: %v", err)
	}
	return fn(e)
}

func newSource(opts *RootOptions) (*catalog.HTTPSource, error) {
	return catalog.NewHTTPSource(opts.API, catalog.WithLogger(opts.logger))
}

func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd.Context(), opts, func(e *cart.Engine) error {
				return newOutput(cmd, opts).cart(e.Snapshot())
			})
		},
	}
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Quantity int
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart. The product is looked up in the catalog and
the quantity is capped by its stock.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource(opts.RootOptions)
			if err != nil {
				return err
			}
			p, err := src.GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("product %s: %w", args[0], err)
			}
			if !p.InStock() {
				return fmt.Errorf("product %s is out of stock", args[0])
			}
			return withCart(cmd.Context(), opts.RootOptions, func(e *cart.Engine) error {
				e.AddItem(*p, opts.Quantity)
				return newOutput(cmd, opts.RootOptions).cart(e.Snapshot())
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Quantity, "qty", "q", 1, "quantity to add")
	return cmd
}

// lineCommand builds a command that applies op to one product line.
func lineCommand(opts *RootOptions, use, short string, op func(e *cart.Engine, id string)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <product-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd.Context(), opts, func(e *cart.Engine) error {
				op(e, args[0])
				return newOutput(cmd, opts).cart(e.Snapshot())
			})
		},
	}
}

func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return lineCommand(opts, "remove", "Remove a product line", (*cart.Engine).RemoveItem)
}

func NewIncCommand(opts *RootOptions) *cobra.Command {
	return lineCommand(opts, "inc", "Add one unit of a product", (*cart.Engine).IncreaseQuantity)
}

func NewDecCommand(opts *RootOptions) *cobra.Command {
	return lineCommand(opts, "dec", "Take away one unit of a product", (*cart.Engine).DecreaseQuantity)
}

func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd.Context(), opts, func(e *cart.Engine) error {
				e.Clear()
				return newOutput(cmd, opts).cart(e.Snapshot())
			})
		},
	}
}

// CheckoutOptions holds flags for the checkout command.
type CheckoutOptions struct {
	*RootOptions
	Phone    string
	NoVerify bool
}

func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckoutOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Print the order message and chat link",
		Long: `Build the order message for the current cart and print the link that
opens it in a chat with the shop. Stock is checked against the catalog first
unless --no-verify is given. The cart is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcOpts := checkout.Options{Phone: opts.Phone, Currency: opts.Currency, Logger: opts.logger}
			if !opts.NoVerify {
				src, err := newSource(opts.RootOptions)
				if err != nil {
					return err
				}
				svcOpts.Catalog = src
			}
			svc := checkout.New(svcOpts)
			return withCart(cmd.Context(), opts.RootOptions, func(e *cart.Engine) error {
				st := e.Snapshot()
				order, err := svc.Prepare(cmd.Context(), st.Items, st.TotalPrice)
				if err != nil {
					return err
				}
				return newOutput(cmd, opts.RootOptions).order(order)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Phone, "phone", envOr("CHECKOUT_PHONE", checkout.DefaultPhone), "shop phone number")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip the stock check against the catalog")
	return cmd
}

func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource(rootOpts)
			if err != nil {
				return err
			}
			products, err := src.List(cmd.Context(), strings.TrimSpace(category))
			if err != nil {
				return err
			}
			return newOutput(cmd, rootOpts).products(products)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	return cmd
}
