package postgres

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/arcfable/campaignforge/internal/store"
)

// docJSON adapts store.Document to pgx's jsonb scan/encode path: pgx
// marshals/unmarshals any type implementing json.Marshaler/Unmarshaler
// against a jsonb column when it isn't one of the driver's native types.
type docJSON store.Document

func (d docJSON) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(d))
}

func (d *docJSON) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*d = docJSON(m)
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
