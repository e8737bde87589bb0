package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// StringArray maps a PostgreSQL TEXT[] column (seat label lists on holds)
type StringArray []string

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// Contains reports whether label is in the array
func (a StringArray) Contains(label string) bool {
	for _, s := range a {
		if s == label {
			return true
		}
	}
	return false
}
