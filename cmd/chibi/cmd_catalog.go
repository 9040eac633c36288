package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fjod/chibi-storefront/internal/catalog"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var (
	query     catalog.Query
	onSale    bool
	lineParam string
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products",
	Long: `List one page of products.

Use --line todo (the default) to include every product line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			q := query
			q.Line = lineParam
			if cmd.Flags().Changed("on-sale") {
				q.OnSale = &onSale
			}
			page, err := app.Catalog.Fetch(ctx, q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tFAV")
			for _, p := range page.Results {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, priceLabel(p), p.Stock, favMark(app.Favorites.IsFavorite(p.ID)))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d products\n", page.Count)
			return nil
		})
	},
}

var productCmd = &cobra.Command{
	Use:   "product [id]",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			p, err := app.Catalog.Get(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, p)
			}
			fmt.Fprintf(out, "%s (#%d)\n", p.Name, p.ID)
			fmt.Fprintf(out, "price: %s\n", priceLabel(*p))
			if chips := p.Chips(); len(chips) > 0 {
				fmt.Fprintf(out, "features: %s\n", strings.Join(chips, " · "))
			}
			if !p.InStock() {
				fmt.Fprintln(out, "out of stock")
			}
			if p.Description != "" {
				fmt.Fprintf(out, "\n%s\n", p.Description)
			}
			return nil
		})
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List product categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			cats, err := app.Catalog.Categories(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), cats)
			}
			for _, c := range cats {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", c.ID, c.Name)
			}
			return nil
		})
	},
}

func priceLabel(p domain.Product) string {
	if p.EffectivePrice() != p.Price {
		return fmt.Sprintf("%s (was %s)", p.EffectivePrice(), p.Price)
	}
	return p.Price.String()
}

func favMark(fav bool) string {
	if fav {
		return "★"
	}
	return ""
}

func init() {
	productsCmd.Flags().StringVarP(&query.Search, "search", "s", "", "Search text")
	productsCmd.Flags().StringVar(&query.Category, "category", "", "Category id")
	productsCmd.Flags().BoolVar(&onSale, "on-sale", false, "Only products on sale")
	productsCmd.Flags().StringVar(&query.Ordering, "ordering", "", "Ordering, e.g. precio or -fecha_subida")
	productsCmd.Flags().IntVar(&query.Page, "page", 1, "Page number")
	productsCmd.Flags().IntVar(&query.PageSize, "page-size", 0, "Page size (defaults to the configured size)")
	productsCmd.Flags().StringVar(&lineParam, "line", domain.AllLines, "Product line")
}
