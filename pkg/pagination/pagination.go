package pagination

import (
	"fmt"
	"strings"
)

const (
	// DefaultSize is the page size used when the caller omits one.
	DefaultSize = 20
	// MaxSize caps how many rows a single page may request.
	MaxSize = 100
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// PageRequest holds page based pagination plus an optional sort.
// Page is zero based.
type PageRequest struct {
	Page      int
	Size      int
	Sort      string
	Direction Direction
}

// Offset returns the row offset for the request.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// NormalizeSize enforces the default and maximum page size.
func NormalizeSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	if size > MaxSize {
		return MaxSize
	}
	return size
}

// ParseDirection accepts asc/desc in any case; empty yields the fallback.
func ParseDirection(value string, fallback Direction) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return fallback, nil
	case string(Asc):
		return Asc, nil
	case string(Desc):
		return Desc, nil
	default:
		return "", fmt.Errorf("invalid sort direction %q", value)
	}
}

// ParseSort validates value against allowed columns; empty yields the fallback.
func ParseSort(value string, allowed []string, fallback string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return fallback, nil
	}
	for _, candidate := range allowed {
		if candidate == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported sort column %q", value)
}

// TotalPages returns how many pages hold total rows at the given size.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
