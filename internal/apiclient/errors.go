package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrServiceUnavailable = errors.New("storefront api unavailable")

// APIError is a non-2xx answer from the storefront API. Message is already
// normalized for display.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    NormalizeMessage(body, fmt.Sprintf("Request failed with status %d", status)),
		Body:       body,
	}
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Message turns any error returned by the client into one string suitable
// for a toast or an inline form banner.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return "The store is temporarily unavailable, please try again later"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out"
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return "Could not reach the store, check your connection"
	}
	return err.Error()
}

// NormalizeMessage flattens the error shapes the backend produces into a
// single line of text: a bare string, {"detail": ...}, {"message": ...} or a
// field keyed object such as {"username": ["ya existe"]}. Field order from
// the body is preserved.
func NormalizeMessage(body []byte, fallback string) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return fallback
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return orFallback(strings.TrimSpace(s), fallback)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return orFallback(joinValues(list), fallback)
	}

	fields, err := orderedFields(body)
	if err != nil || len(fields) == 0 {
		return fallback
	}

	for _, key := range []string{"detail", "message"} {
		for _, f := range fields {
			if f.key == key {
				if text := valueText(f.value); text != "" {
					return text
				}
			}
		}
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		text := valueText(f.value)
		if text == "" {
			continue
		}
		if f.key == "non_field_errors" {
			lines = append(lines, text)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", fieldLabel(f.key), text))
	}
	return orFallback(strings.Join(lines, "\n"), fallback)
}

type field struct {
	key   string
	value json.RawMessage
}

func orderedFields(body []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("not an object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("unexpected object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return fields, nil
}

func valueText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err == nil {
		return joinValues(list)
	}
	if len(v) > 0 && v[0] == '{' {
		return NormalizeMessage(v, "")
	}
	return strings.TrimSpace(string(v))
}

func joinValues(list []json.RawMessage) string {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if text := valueText(item); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func fieldLabel(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	r, size := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return label
	}
	return string(unicode.ToUpper(r)) + label[size:]
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
