package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show and change the cart",
	Long: `Show the current cart. As a guest the cart is tied to a session key kept
in the state store; it is merged into your account when you log in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			return printCart(cmd, app.Cart.Cart())
		})
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add [product-id] [quantity]",
	Short: "Add a product to the cart",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, qty, err := parseItemArgs(args, 1)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			if err := app.Cart.Add(ctx, id, qty); err != nil {
				return err
			}
			return printCart(cmd, app.Cart.Cart())
		})
	},
}

var cartSetCmd = &cobra.Command{
	Use:   "set [product-id] [quantity]",
	Short: "Set the quantity of a line; 0 removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, qty, err := parseItemArgs(args, 0)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			if err := app.Cart.Update(ctx, id, qty); err != nil {
				return err
			}
			return printCart(cmd, app.Cart.Cart())
		})
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove [product-id]",
	Short: "Remove a line from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _, err := parseItemArgs(args, 0)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			if err := app.Cart.Remove(ctx, id); err != nil {
				return err
			}
			return printCart(cmd, app.Cart.Cart())
		})
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			return app.Cart.Clear(ctx)
		})
	},
}

func parseItemArgs(args []string, defaultQty int) (int64, int, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("invalid product id %q", args[0])
	}
	qty := defaultQty
	if len(args) > 1 {
		if qty, err = strconv.Atoi(args[1]); err != nil {
			return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
		}
	}
	return id, qty, nil
}

func printCart(cmd *cobra.Command, c *domain.Cart) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, c)
	}
	if c == nil || len(c.Items) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tQTY\tLINE TOTAL")
	for _, it := range c.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", it.Product.ID, it.Product.Name, it.Quantity, it.LineTotal)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d items, subtotal %s\n", c.ItemCount(), c.Subtotal())
	return nil
}

func init() {
	cartCmd.AddCommand(cartAddCmd, cartSetCmd, cartRemoveCmd, cartClearCmd)
}
