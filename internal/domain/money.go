package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Money is a price as sent by the API. Decimal fields arrive either as JSON
// numbers or as strings such as "12.50".
type Money float64

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode money: %w", err)
		}
		if s == "" {
			*m = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("decode money %q: %w", s, err)
		}
		*m = Money(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = Money(f)
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m Money) String() string {
	return strconv.FormatFloat(float64(m), 'f', 2, 64)
}

// Cents rounds to the smallest currency unit, used to compare sums without
// float noise.
func (m Money) Cents() int64 {
	f := float64(m) * 100
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}
