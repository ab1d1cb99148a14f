/**
 * Share ratio parsing for ownership records (權利範圍)
 *
 * Recognizes full ownership (全部), spelled-out Chinese fractions and
 * numeric n/m ratios, in that order of precedence. Ratio sums are
 * validated as exact rationals, never floating point.
 */

package parser

import (
	"math/big"
	"regexp"
	"strings"
)

var numericRatioPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// chineseFractions maps spelled-out fractions to canonical ratios. Order
// matters: the table is scanned top to bottom and the first hit wins.
var chineseFractions = []struct {
	word  string
	ratio string
}{
	{"二分之一", "1/2"},
	{"三分之一", "1/3"},
	{"三分之二", "2/3"},
	{"四分之一", "1/4"},
	{"四分之三", "3/4"},
	{"五分之一", "1/5"},
	{"十分之一", "1/10"},
	{"十分之三", "3/10"},
}

// ParseShareRatio extracts an ownership share from text as
// "numerator/denominator". Precedence: the full-ownership token, then the
// fraction-word table, then a raw numeric ratio.
func ParseShareRatio(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	if strings.Contains(text, "全部") {
		return "1/1", true
	}

	for _, f := range chineseFractions {
		if strings.Contains(text, f.word) {
			return f.ratio, true
		}
	}

	if m := numericRatioPattern.FindStringSubmatch(text); m != nil {
		return m[1] + "/" + m[2], true
	}

	return "", false
}

// ValidateShareSum reports whether the given ratios sum to exactly 1.
// Unparsable ratios and zero denominators report false rather than
// panicking; a malformed share is a validation outcome, not a fault.
func ValidateShareSum(ratios []string) bool {
	if len(ratios) == 0 {
		return false
	}

	total := new(big.Rat)
	for _, ratio := range ratios {
		r, ok := new(big.Rat).SetString(ratio)
		if !ok {
			return false
		}
		if r.Sign() <= 0 {
			return false
		}
		total.Add(total, r)
	}

	return total.Cmp(big.NewRat(1, 1)) == 0
}
