// Package convert provides checked integer conversions.
package convert

import (
	"math"

	"github.com/cockroachdb/errors"
)

// IntToInt32 converts v, returning an error if it does not fit.
func IntToInt32(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, errors.Newf("integer overflow: %d cannot be converted to int32", v)
	}
	return int32(v), nil
}
