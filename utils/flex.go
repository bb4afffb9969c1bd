package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// FlexID accepts a JSON number or a numeric string. null, "" and 0 decode to zero.
type FlexID uint

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.New("must be a positive integer")
	}
	*f = FlexID(n)
	return nil
}

// Ref points at a row by id or by name: 3, "3" and "Productivity" are all accepted.
type Ref struct {
	ID   uint
	Name string
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			*r = Ref{ID: uint(n)}
			return nil
		}
		*r = Ref{Name: s}
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return errors.New("must be an id or a name")
	}
	*r = Ref{ID: uint(n)}
	return nil
}

func (r Ref) IsZero() bool {
	return r.ID == 0 && r.Name == ""
}
