package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fjod/chibi-storefront/internal/catalog"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var (
	productIn   catalog.ProductInput
	priceFlag   float64
	salePrice   float64
	imagePaths  []string
	categoryIDs []int64
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage products (superusers only)",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a product",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := productInput()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			p, err := app.Catalog.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created product %d\n", p.ID)
			return nil
		})
	},
}

var adminUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		in, err := productInput()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			_, err := app.Catalog.Update(ctx, id, in)
			return err
		})
	},
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		return withApp(cmd, func(ctx context.Context, app *storefront.App) error {
			return app.Catalog.Delete(ctx, id)
		})
	},
}

// productInput collects the flags; up to three --image paths fill the
// picture slots in order.
func productInput() (catalog.ProductInput, error) {
	in := productIn
	in.Price = domain.Money(priceFlag)
	in.SalePrice = domain.Money(salePrice)
	in.CategoryIDs = categoryIDs
	if len(imagePaths) > 3 {
		return in, fmt.Errorf("at most 3 images, got %d", len(imagePaths))
	}
	for i, path := range imagePaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("read image: %w", err)
		}
		if in.Images == nil {
			in.Images = map[int]catalog.Image{}
		}
		in.Images[i+1] = catalog.Image{Filename: filepath.Base(path), Content: content}
	}
	return in, nil
}

func init() {
	for _, c := range []*cobra.Command{adminCreateCmd, adminUpdateCmd} {
		f := c.Flags()
		f.StringVar(&productIn.Name, "name", "", "Product name")
		f.StringVar(&productIn.Description, "description", "", "Description")
		f.Float64Var(&priceFlag, "price", 0, "Price")
		f.BoolVar(&productIn.OnSale, "on-sale", false, "Mark as on sale")
		f.Float64Var(&salePrice, "sale-price", 0, "Sale price")
		f.Int64SliceVar(&categoryIDs, "category", nil, "Category id, repeatable")
		f.StringVar(&productIn.Line, "line", "", "Product line")
		f.StringVar(&productIn.Features, "features", "", "Comma separated features")
		f.IntVar(&productIn.Stock, "stock", 0, "Units in stock")
		f.BoolVar(&productIn.Available, "available", true, "Listed in the store")
		f.StringSliceVar(&imagePaths, "image", nil, "Image file, repeatable (max 3)")
	}
	adminCmd.AddCommand(adminCreateCmd, adminUpdateCmd, adminDeleteCmd)
}
