package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// DefaultKey is the slot the terminal storefront keeps its cart in.
const DefaultKey = "storefront:cart"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB       string
	API      string
	Format   string
	Key      string
	Currency string
	Verbose  bool

	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the terminal storefront.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Shop the storefront catalog from a terminal",
		Long: `cartctl browses the storefront catalog over its HTTP API and keeps a
cart in a local SQLite file. Each command restores the cart, applies one
operation and saves it again.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				opts.logger = l
			} else {
				opts.logger = zap.NewNop()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", defaultDBPath(), "SQLite file holding the cart")
	cmd.PersistentFlags().StringVar(&opts.API, "api", envOr("STOREFRONT_API", "http://localhost:8080"), "storefront API base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Key, "key", DefaultKey, "cart slot key")
	cmd.PersistentFlags().StringVar(&opts.Currency, "currency", "", "currency label for prices")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewIncCommand(opts))
	cmd.AddCommand(NewDecCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))

	return cmd
}

func defaultDBPath() string {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "storefront-cart.db"
	}
	return filepath.Join(home, ".storefront", "cart.db")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
