package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// TextArray maps a PostgreSQL TEXT[] column. NULL scans to an empty slice so
// JSON responses always carry [] instead of null.
type TextArray []string

// Value implements the driver.Valuer interface
func (a TextArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *TextArray) Scan(src interface{}) error {
	if src == nil {
		*a = TextArray{}
		return nil
	}
	var values []string
	if err := pq.Array(&values).Scan(src); err != nil {
		return err
	}
	if values == nil {
		values = []string{}
	}
	*a = values
	return nil
}
