package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/pagination"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParsePageRequest reads page, size, sort and direction. Sort is checked
// against allowedSorts; pass nil to ignore sort parameters.
func ParsePageRequest(r *http.Request, allowedSorts []string, defaultSort string) (pagination.PageRequest, error) {
	page, err := ParseQueryInt(r, "page", 0, 0, 1<<20)
	if err != nil {
		return pagination.PageRequest{}, err
	}
	size, err := ParseQueryInt(r, "size", pagination.DefaultSize, 1, pagination.MaxSize)
	if err != nil {
		return pagination.PageRequest{}, err
	}
	req := pagination.PageRequest{Page: page, Size: size}
	if allowedSorts == nil {
		return req, nil
	}

	query := r.URL.Query()
	req.Sort, err = pagination.ParseSort(query.Get("sort"), allowedSorts, defaultSort)
	if err != nil {
		return pagination.PageRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort").WithDetails(map[string]any{"field": "sort", "allowed": allowedSorts})
	}
	req.Direction, err = pagination.ParseDirection(query.Get("direction"), pagination.Desc)
	if err != nil {
		return pagination.PageRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction").WithDetails(map[string]any{"field": "direction"})
	}
	return req, nil
}
