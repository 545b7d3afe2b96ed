package preflag

import (
	pkgerrors "github.com/pkg/errors"
)

// FlagsOverThreshold reports whether the fraction of set flags is strictly
// greater than thresh. The call site blanks the whole channel range when this
// trips, so a single bad region poisons the entire cell instead of leaving
// sparse holes. thresh must be a fraction between 0 and 1.
func FlagsOverThreshold(flags []bool, thresh float64) (bool, error) {
	if thresh < 0 || thresh > 1 {
		return false, pkgerrors.Errorf("threshold %v must be a fraction between 0 and 1", thresh)
	}
	if len(flags) == 0 {
		return false, nil
	}

	count := 0
	for _, f := range flags {
		if f {
			count++
		}
	}
	return float64(count)/float64(len(flags)) > thresh, nil
}
