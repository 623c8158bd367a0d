// Command storefrontctl queries the commerce API the storefront talks to.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/logger"
)

var (
	// Global flags
	endpoint string
	verbose  bool
	timeout  time.Duration

	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "storefrontctl",
	Short: "Inspect the storefront's commerce API",
	Long: `storefrontctl issues the same GraphQL operations the storefront uses,
with a throwaway session, and prints the typed results.

Examples:
  storefrontctl products --category bikes
  storefrontctl product blue-bike
  storefrontctl checkout-data --add cHJvZHVjdDo3`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		log, err = logger.NewLogger(level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "g", envOr("GRAPHQL_ENDPOINT", commerce.DefaultEndpoint), "commerce GraphQL endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every API call")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 15*time.Second, "timeout for the whole command")

	productsCmd.Flags().StringVar(&listCategory, "category", "", "category slug")
	productsCmd.Flags().IntVar(&listFirst, "first", 12, "page size")
	productsCmd.Flags().StringVar(&listAfter, "after", "", "cursor to page forward from")
	productsCmd.Flags().StringVar(&listBefore, "before", "", "cursor to page back from")
	categoriesCmd.Flags().IntVar(&categoryLimit, "first", 50, "number of categories")
	checkoutDataCmd.Flags().StringSliceVar(&seedProducts, "add", nil, "product ids to add to the session cart first")

	rootCmd.AddCommand(productsCmd, categoriesCmd, productCmd, checkoutDataCmd)
}

// session opens a fresh remote session; nothing is persisted between runs.
func session() *commerce.Session {
	return commerce.NewClient(endpoint, timeout, log.Named("commerce")).Session(&commerce.MemoryTokens{})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
