package apiclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"field keyed", `{"username": ["ya existe"]}`, "Username: ya existe"},
		{"multiple fields keep order", `{"password": ["muy corta", "muy común"], "email": "inválido"}`,
			"Password: muy corta muy común\nEmail: inválido"},
		{"detail", `{"detail": "No active account found with the given credentials"}`,
			"No active account found with the given credentials"},
		{"message", `{"message": "Stock insuficiente"}`, "Stock insuficiente"},
		{"detail wins over fields", `{"code": "token_not_valid", "detail": "Token expirado"}`, "Token expirado"},
		{"plain string", `"Algo salió mal"`, "Algo salió mal"},
		{"list of strings", `["uno", "dos"]`, "uno dos"},
		{"non field errors", `{"non_field_errors": ["Las contraseñas no coinciden"]}`, "Las contraseñas no coinciden"},
		{"underscored key", `{"precio_oferta": ["Requerido"]}`, "Precio oferta: Requerido"},
		{"nested object", `{"producto": {"stock": ["agotado"]}}`, "Producto: Stock: agotado"},
		{"html page", `<html>502</html>`, "fallback"},
		{"empty", ``, "fallback"},
		{"empty object", `{}`, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMessage([]byte(tt.body), "fallback"))
		})
	}
}

func TestMessage(t *testing.T) {
	apiErr := newAPIError(400, []byte(`{"username": ["ya existe"]}`))

	assert.Equal(t, "", Message(nil))
	assert.Contains(t, Message(fmt.Errorf("register: %w", apiErr)), "Username: ya existe")
	assert.Contains(t, Message(fmt.Errorf("get: %w", ErrServiceUnavailable)), "temporarily unavailable")
	assert.Equal(t, "The request timed out", Message(context.DeadlineExceeded))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}

func TestNewAPIError_FallbackMentionsStatus(t *testing.T) {
	err := newAPIError(503, nil)
	assert.Equal(t, "Request failed with status 503", err.Message)
	assert.True(t, IsStatus(err, 503))
	assert.False(t, IsStatus(err, 404))
	assert.False(t, IsStatus(errors.New("x"), 503))
}
