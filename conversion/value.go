package conversion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// currencyMarks are stripped from totals before parsing ("৳1,800", "Tk 1800").
var currencyMarks = []string{"৳", "BDT", "Tk.", "Tk", "tk"}

// ParseValue reads an order total as it arrives in a query string or form.
// It returns ErrInvalidValue for anything that is not a finite positive number.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	for _, mark := range currencyMarks {
		s = strings.ReplaceAll(s, mark, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidValue)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if !validAmount(v) || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	return v, nil
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
