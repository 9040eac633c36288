package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrUnsupportedVersion = errors.New("persisted state has a newer schema version")

// envelope wraps every persisted value so the layout can evolve. Values
// written before envelopes existed are read as version 0.
type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Migration upgrades a payload by exactly one version.
type Migration func(data json.RawMessage) (json.RawMessage, error)

// Schema describes the current version of a persisted value and how to reach
// it from older ones. Migrations is keyed by the version it upgrades from.
type Schema struct {
	Version    int
	Migrations map[int]Migration
}

// StringSchema covers plain string values such as tokens and the cart
// session key. Version 0 is the raw, unquoted text.
var StringSchema = Schema{
	Version: 1,
	Migrations: map[int]Migration{
		0: func(data json.RawMessage) (json.RawMessage, error) {
			var s string
			if err := json.Unmarshal(data, &s); err == nil {
				return data, nil
			}
			return json.Marshal(string(data))
		},
	},
}

// IDListSchema covers the guest favorites list. Version 0 may hold numbers
// or numeric strings and duplicates.
var IDListSchema = Schema{
	Version: 1,
	Migrations: map[int]Migration{
		0: func(data json.RawMessage) (json.RawMessage, error) {
			var raw []json.RawMessage
			if err := json.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("legacy id list: %w", err)
			}
			seen := make(map[int64]struct{}, len(raw))
			ids := make([]int64, 0, len(raw))
			for _, r := range raw {
				id, err := parseLegacyID(r)
				if err != nil {
					return nil, err
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return json.Marshal(ids)
		},
	},
}

func parseLegacyID(r json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(r, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return 0, fmt.Errorf("legacy id %s: %w", r, err)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("legacy id %q: %w", s, err)
	}
	return n, nil
}

// Load reads key and decodes it into T, migrating older layouts and writing
// the upgraded envelope back. ok is false when the key is absent.
func Load[T any](ctx context.Context, s Store, key string, schema Schema) (value T, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}

	env := decodeEnvelope(raw)
	if env.Version > schema.Version {
		return value, false, fmt.Errorf("%s at v%d: %w", key, env.Version, ErrUnsupportedVersion)
	}

	upgraded := false
	for env.Version < schema.Version {
		migrate, found := schema.Migrations[env.Version]
		if !found {
			return value, false, fmt.Errorf("%s: no migration from v%d", key, env.Version)
		}
		data, err := migrate(env.Data)
		if err != nil {
			return value, false, fmt.Errorf("%s: migrate from v%d: %w", key, env.Version, err)
		}
		env = envelope{Version: env.Version + 1, Data: data}
		upgraded = true
	}

	if err := json.Unmarshal(env.Data, &value); err != nil {
		return value, false, fmt.Errorf("%s: decode: %w", key, err)
	}

	if upgraded {
		if err := write(ctx, s, key, env); err != nil {
			return value, false, err
		}
	}
	return value, true, nil
}

// Save encodes v under the current schema version.
func Save[T any](ctx context.Context, s Store, key string, schema Schema, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", key, err)
	}
	return write(ctx, s, key, envelope{Version: schema.Version, Data: data})
}

func write(ctx context.Context, s Store, key string, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s: encode envelope: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

func decodeEnvelope(raw []byte) envelope {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var head struct {
			Version *int            `json:"v"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &head); err == nil && head.Version != nil {
			return envelope{Version: *head.Version, Data: head.Data}
		}
	}
	return envelope{Version: 0, Data: json.RawMessage(raw)}
}

// LoadString and SaveString are shorthands for string valued keys.
func LoadString(ctx context.Context, s Store, key string) (string, error) {
	v, _, err := Load[string](ctx, s, key, StringSchema)
	return v, err
}

func SaveString(ctx context.Context, s Store, key, value string) error {
	return Save(ctx, s, key, StringSchema, value)
}
