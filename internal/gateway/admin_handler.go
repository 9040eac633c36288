package gateway

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/chibi-storefront/internal/catalog"
	"github.com/fjod/chibi-storefront/internal/domain"
)

type AdminHandler struct {
	catalog *catalog.Provider
	timeout time.Duration
	maxForm int64
}

func NewAdminHandler(p *catalog.Provider, timeout time.Duration, maxForm int64) *AdminHandler {
	return &AdminHandler{catalog: p, timeout: timeout, maxForm: maxForm}
}

var imageSlots = map[string]int{"imagen": 1, "imagen_2": 2, "imagen_3": 3}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	product, err := h.catalog.Create(ctx, in)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	product, err := h.catalog.Update(ctx, id, in)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(ctx, id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseForm reads the admin product form using the API field names.
func (h *AdminHandler) parseForm(w http.ResponseWriter, r *http.Request) (catalog.ProductInput, bool) {
	var in catalog.ProductInput
	if err := r.ParseMultipartForm(h.maxForm); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form")
		return in, false
	}

	form := r.MultipartForm
	get := func(name string) string {
		if v := form.Value[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	var err error
	in.Name = get("nombre")
	in.Description = get("descripcion")
	in.Line = get("linea")
	in.Features = get("caracteristicas")
	in.OnSale = parseBool(get("oferta"))
	in.Available = parseBool(get("disponible"))
	if in.Price, err = parseMoney(get("precio")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_price", "precio must be a number")
		return in, false
	}
	if in.SalePrice, err = parseMoney(get("precio_oferta")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_price", "precio_oferta must be a number")
		return in, false
	}
	if s := get("stock"); s != "" {
		if in.Stock, err = strconv.Atoi(s); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_stock", "stock must be an integer")
			return in, false
		}
	}
	for _, v := range form.Value["categorias"] {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_category", "categorias must be ids")
			return in, false
		}
		in.CategoryIDs = append(in.CategoryIDs, id)
	}

	for field, slot := range imageSlots {
		headers := form.File[field]
		if len(headers) == 0 {
			continue
		}
		img, err := readImage(headers[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_image", "could not read "+field)
			return in, false
		}
		if in.Images == nil {
			in.Images = map[int]catalog.Image{}
		}
		in.Images[slot] = img
	}
	return in, true
}

func readImage(fh *multipart.FileHeader) (catalog.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return catalog.Image{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return catalog.Image{}, err
	}
	return catalog.Image{Filename: fh.Filename, Content: content}, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseMoney(s string) (domain.Money, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return domain.Money(f), err
}
