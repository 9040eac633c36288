package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
)

// Image is one uploaded product picture.
type Image struct {
	Filename string
	Content  []byte
}

// ProductInput is the admin product form. Images are keyed by slot 1 to 3;
// slots left empty keep the current picture on update.
type ProductInput struct {
	Name        string
	Description string
	Price       domain.Money
	OnSale      bool
	SalePrice   domain.Money
	CategoryIDs []int64
	Line        string
	Features    string
	Stock       int
	Available   bool
	Images      map[int]Image
}

var imageFields = map[int]string{1: "imagen", 2: "imagen_2", 3: "imagen_3"}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case in.Price < 0 || in.SalePrice < 0:
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidInput)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	for slot := range in.Images {
		if _, ok := imageFields[slot]; !ok {
			return fmt.Errorf("%w: image slot %d", ErrInvalidInput, slot)
		}
	}
	return nil
}

func (in ProductInput) form() *apiclient.MultipartForm {
	f := &apiclient.MultipartForm{
		Fields: []apiclient.FormField{
			{Name: "nombre", Value: in.Name},
			{Name: "descripcion", Value: in.Description},
			{Name: "precio", Value: in.Price.String()},
			{Name: "oferta", Value: strconv.FormatBool(in.OnSale)},
			{Name: "precio_oferta", Value: in.SalePrice.String()},
			{Name: "linea", Value: in.Line},
			{Name: "caracteristicas", Value: in.Features},
			{Name: "stock", Value: strconv.Itoa(in.Stock)},
			{Name: "disponible", Value: strconv.FormatBool(in.Available)},
		},
	}
	for _, id := range in.CategoryIDs {
		f.Fields = append(f.Fields, apiclient.FormField{Name: "categorias", Value: strconv.FormatInt(id, 10)})
	}
	for slot := 1; slot <= len(imageFields); slot++ {
		img, ok := in.Images[slot]
		if !ok {
			continue
		}
		f.Files = append(f.Files, apiclient.FormFile{Field: imageFields[slot], Filename: img.Filename, Content: img.Content})
	}
	return f
}

func (p *Provider) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	return p.save(ctx, "create", http.MethodPost, productsPath, in)
}

// Update sends the whole form as a PATCH.
func (p *Provider) Update(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	return p.save(ctx, "update", http.MethodPatch, productPath(id), in)
}

func (p *Provider) Delete(ctx context.Context, id int64) error {
	if err := p.requireAdmin(); err != nil {
		return err
	}
	if _, err := p.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: productPath(id)}, nil); err != nil {
		p.notifier.Add(apiclient.Message(err), domain.SeverityError, 0)
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	p.notifier.Add("Product deleted", domain.SeveritySuccess, 0)
	p.log.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (p *Provider) save(ctx context.Context, op, method, path string, in ProductInput) (*domain.Product, error) {
	if err := p.requireAdmin(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product domain.Product
	if _, err := p.api.Do(ctx, apiclient.Request{Method: method, Path: path, Form: in.form()}, &product); err != nil {
		p.notifier.Add(apiclient.Message(err), domain.SeverityError, 0)
		return nil, fmt.Errorf("%s product: %w", op, err)
	}
	p.notifier.Add("Product saved", domain.SeveritySuccess, 0)
	p.log.Info("product saved", zap.String("op", op), zap.Int64("product_id", product.ID))
	return &product, nil
}

func (p *Provider) requireAdmin() error {
	if p.auth == nil || !p.auth.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
