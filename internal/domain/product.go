package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AllLines is the sentinel line value meaning "do not filter by line".
const AllLines = "todo"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

type Product struct {
	ID          int64      `json:"id"`
	Name        string     `json:"nombre"`
	Description string     `json:"descripcion,omitempty"`
	Price       Money      `json:"precio"`
	OnSale      bool       `json:"oferta"`
	SalePrice   Money      `json:"precio_oferta"`
	Image       string     `json:"imagen,omitempty"`
	Image2      string     `json:"imagen_2,omitempty"`
	Image3      string     `json:"imagen_3,omitempty"`
	Categories  []Category `json:"categorias"`
	Line        string     `json:"linea,omitempty"`
	Features    string     `json:"caracteristicas,omitempty"`
	Stock       int        `json:"stock"`
	Available   bool       `json:"disponible"`
	UploadedAt  time.Time  `json:"fecha_subida"`
}

// EffectivePrice is what the storefront shows as the price to pay.
func (p Product) EffectivePrice() Money {
	if p.OnSale && p.SalePrice > 0 {
		return p.SalePrice
	}
	return p.Price
}

// Images returns the non-empty image URLs in display order.
func (p Product) Images() []string {
	images := make([]string, 0, 3)
	for _, img := range []string{p.Image, p.Image2, p.Image3} {
		if img != "" {
			images = append(images, img)
		}
	}
	return images
}

// Chips splits the comma separated feature string into display tags.
func (p Product) Chips() []string {
	if strings.TrimSpace(p.Features) == "" {
		return nil
	}
	parts := strings.Split(p.Features, ",")
	chips := make([]string, 0, len(parts))
	for _, part := range parts {
		if c := strings.TrimSpace(part); c != "" {
			chips = append(chips, c)
		}
	}
	return chips
}

// InStock reports whether the product can be added to a cart.
func (p Product) InStock() bool {
	return p.Available && p.Stock > 0
}

// UnmarshalJSON accepts categories either as objects or as bare ids, the
// list and detail endpoints serialize them differently. The upload date may
// be a full timestamp or a plain date.
func (p *Product) UnmarshalJSON(data []byte) error {
	type productAlias Product
	aux := struct {
		*productAlias
		Categories []json.RawMessage `json:"categorias"`
		UploadedAt string            `json:"fecha_subida"`
	}{productAlias: (*productAlias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// display only: an unreadable date leaves the zero time
	p.UploadedAt, _ = parseUploadDate(aux.UploadedAt)

	p.Categories = p.Categories[:0]
	for _, raw := range aux.Categories {
		var c Category
		if err := json.Unmarshal(raw, &c); err == nil {
			p.Categories = append(p.Categories, c)
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return err
		}
		p.Categories = append(p.Categories, Category{ID: id})
	}
	return nil
}

var uploadDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

func parseUploadDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range uploadDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized upload date %q", s)
}

type ProductPage struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Product `json:"results"`
}
