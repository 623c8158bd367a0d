package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drstein77/storefront/internal/cart"
	"github.com/drstein77/storefront/internal/commerce"
)

var (
	listCategory  string
	listFirst     int
	listAfter     string
	listBefore    string
	categoryLimit int
)

// productsCmd lists one page of products
var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List a page of products",
	Args:  cobra.NoArgs,
	RunE:  listProducts,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List product categories",
	Args:  cobra.NoArgs,
	RunE:  listCategories,
}

// productCmd shows a single product by slug
var productCmd = &cobra.Command{
	Use:   "product [slug]",
	Short: "Show a product with its gallery, attributes and reviews",
	Args:  cobra.ExactArgs(1),
	RunE:  showProduct,
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}

func listProducts(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	q := commerce.ProductsQuery{Category: listCategory}
	if listBefore != "" {
		q.Last, q.Before = listFirst, listBefore
	} else {
		q.First, q.After = listFirst, listAfter
	}
	page, err := session().Products(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLUG\tNAME\tPRICE")
	for _, p := range page.Products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Slug, p.Name, cart.FormatMoney(cart.ParsePrice(p.Price)))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.PageInfo.HasNextPage {
		fmt.Fprintf(cmd.OutOrStdout(), "next: --after %s\n", page.PageInfo.EndCursor)
	}
	if page.PageInfo.HasPreviousPage {
		fmt.Fprintf(cmd.OutOrStdout(), "previous: --before %s\n", page.PageInfo.StartCursor)
	}
	return nil
}

func listCategories(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	categories, err := session().Categories(ctx, categoryLimit)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME")
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%s\n", c.Slug, c.Name)
	}
	return w.Flush()
}

func showProduct(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	p, err := session().Product(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}
	if p == nil {
		return fmt.Errorf("product %q not found", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (#%d)\n", p.Name, p.DatabaseID)
	fmt.Fprintf(out, "price: %s\n", cart.FormatMoney(cart.ParsePrice(p.Price)))
	for _, img := range p.Images() {
		fmt.Fprintf(out, "image: %s\n", img)
	}
	for _, a := range p.Attributes {
		fmt.Fprintf(out, "%s: %v\n", a.Name, a.Options)
	}
	fmt.Fprintf(out, "reviews: %d, related: %d\n", len(p.Reviews), len(p.Related))
	return nil
}
