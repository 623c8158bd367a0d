package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/commerce"
)

var seedProducts []string

// checkoutDataCmd fills a throwaway cart and prints what checkout would offer
var checkoutDataCmd = &cobra.Command{
	Use:   "checkout-data",
	Short: "Show cart totals, shipping rates and payment gateways",
	Long: `Adds the given products to a fresh remote cart, then prints the
recalculated totals, the shipping rates and the payment gateways.`,
	Args: cobra.NoArgs,
	RunE: showCheckoutData,
}

func showCheckoutData(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s := session()
	for _, raw := range seedProducts {
		id, err := commerce.DecodeID(raw)
		if err != nil {
			return fmt.Errorf("product %q: %w", raw, err)
		}
		if _, err := s.AddToCart(ctx, id, 1); err != nil {
			return fmt.Errorf("failed to add product %d: %w", id, err)
		}
		log.Debug("added to remote cart", zap.Int("product", id))
	}

	data, err := s.CheckoutData(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkout data: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, l := range data.Summary.Lines {
		fmt.Fprintf(w, "%d x\t%s\t%s\n", l.Quantity, l.Name, l.Total)
	}
	fmt.Fprintf(w, "subtotal\t\t%s\n", data.Summary.Subtotal)
	fmt.Fprintf(w, "shipping\t\t%s\n", data.Summary.ShippingTotal)
	if data.Summary.HasDiscount() {
		fmt.Fprintf(w, "discount\t\t%s\n", data.Summary.DiscountTotal)
	}
	fmt.Fprintf(w, "total\t\t%s\n", data.Summary.Total)
	for _, r := range data.Rates {
		fmt.Fprintf(w, "rate\t%s\t%s (%s)\n", r.ID, r.Label, r.Cost)
	}
	for _, g := range data.Gateways {
		fmt.Fprintf(w, "gateway\t%s\t%s\n", g.ID, g.Title)
	}
	return w.Flush()
}
