package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

// maxOffset keeps catalog scans bounded.
const maxOffset = 1 << 20

// ParsePagination reads limit and offset for list endpoints.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	limit, err := queryInt(query, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	offset, err := queryInt(query, "offset", 0, 0, maxOffset)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Offset: offset}, nil
}

// ParseQueryInt reads an optional integer query parameter within [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	return queryInt(r.URL.Query(), key, fallback, lo, hi)
}

func queryInt(query url.Values, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key, "value": SanitizeString(raw, 32)})
	case value < lo || value > hi:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi, "value": value})
	}
	return value, nil
}
