package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLimit reads a listing limit from a query value. Empty yields def;
// values above max are clamped. Non-numeric or non-positive values are
// validation errors.
func ParseLimit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrValidation)
	}
	if n > max {
		n = max
	}
	return n, nil
}
