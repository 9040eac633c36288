package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/chibi-storefront/internal/domain"
)

func TestParseItemArgs(t *testing.T) {
	id, qty, err := parseItemArgs([]string{"4"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.Equal(t, 1, qty)

	_, qty, err = parseItemArgs([]string{"4", "0"}, 1)
	require.NoError(t, err)
	assert.Zero(t, qty)

	_, _, err = parseItemArgs([]string{"x"}, 1)
	assert.Error(t, err)
	_, _, err = parseItemArgs([]string{"4", "many"}, 1)
	assert.Error(t, err)
}

func TestPrintCart(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	asJSON = false

	require.NoError(t, printCart(cmd, nil))
	assert.Equal(t, "cart is empty\n", buf.String())

	buf.Reset()
	c := &domain.Cart{
		Items: []domain.CartItem{{Product: domain.Product{ID: 2, Name: "Mat"}, Quantity: 2, LineTotal: 20}},
		Total: 20,
	}
	require.NoError(t, printCart(cmd, c))
	assert.Contains(t, buf.String(), "Mat")
	assert.Contains(t, buf.String(), "2 items, subtotal 20.00")
}

func TestPriceLabel(t *testing.T) {
	assert.Equal(t, "10.00", priceLabel(domain.Product{Price: 10}))
	assert.Equal(t, "8.00 (was 10.00)", priceLabel(domain.Product{Price: 10, OnSale: true, SalePrice: 8}))
}

func TestProductsCommand(t *testing.T) {
	var linea []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/productos/":
			linea = r.URL.Query()["linea"]
			w.Write([]byte(`{"count": 1, "results": [{"id": 3, "nombre": "Rodillo", "precio": "15.00", "stock": 2}]}`))
		case "/api/cart/":
			w.Write([]byte(`{"items": [], "total": "0.00", "total_items": 0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	t.Setenv("CHIBI_API_URL", srv.URL+"/api")
	t.Setenv("CHIBI_STATE_BACKEND", "memory")
	t.Setenv("CHIBI_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"products", "--search", "rod"})
	require.NoError(t, rootCmd.Execute())

	assert.Empty(t, linea)
	assert.True(t, strings.Contains(out.String(), "Rodillo"))
	assert.Contains(t, out.String(), "1 products")
}
