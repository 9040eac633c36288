package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/chibi-storefront/internal/favorites"
)

type FavoritesHandler struct {
	favorites *favorites.Manager
	timeout   time.Duration
}

func NewFavoritesHandler(f *favorites.Manager, timeout time.Duration) *FavoritesHandler {
	return &FavoritesHandler{favorites: f, timeout: timeout}
}

type FavoritesResponse struct {
	IDs []int64 `json:"ids"`
}

type ToggleResponse struct {
	ProductID int64 `json:"product_id"`
	Favorite  bool  `json:"favorite"`
}

func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.favorites.Load(ctx); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FavoritesResponse{IDs: h.favorites.IDs()})
}

func (h *FavoritesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	fav, err := h.favorites.Toggle(ctx, productID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ToggleResponse{ProductID: productID, Favorite: fav})
}
