package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TableNumbers is an ordered list of table numbers stored as a JSON array.
type TableNumbers []int

func (n TableNumbers) Value() (driver.Value, error) {
	if n == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (n *TableNumbers) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*n = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into TableNumbers", src)
	}
	if len(raw) == 0 {
		*n = nil
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		*n = nil
		return nil
	}
	*n = out
	return nil
}

// Contains reports whether number is in the list.
func (n TableNumbers) Contains(number int) bool {
	for _, v := range n {
		if v == number {
			return true
		}
	}
	return false
}
