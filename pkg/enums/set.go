package enums

import (
	"fmt"
	"slices"
)

// valueSet is the closed list of values a string enum accepts.
type valueSet[T ~string] []T

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s valueSet[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
