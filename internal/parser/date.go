/**
 * Date parsing for transcript fields
 *
 * Reconciles four dialects: ISO (already normalized, never re-interpreted),
 * ROC long form (民國112年12月01日), Gregorian long form (2023年12月01日)
 * and the compact dotted form (112.12.01, assumed ROC when the year is
 * below 200). Resolution order is ISO, ROC, Gregorian, dotted; ROC runs
 * before Gregorian because the 民國 marker is a strict substring signal.
 */

package parser

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	isoDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	rocDatePattern = regexp.MustCompile(`民國(\d+)年(\d+)月(\d+)日`)
	adDatePattern  = regexp.MustCompile(`(\d{4})年(\d+)月(\d+)日`)
	dotDatePattern = regexp.MustCompile(`(\d{2,3})\.(\d{1,2})\.(\d{1,2})`)
)

// RocToAD converts a Republic-of-China year to a Gregorian year.
func RocToAD(rocYear int) int {
	return rocYear + 1911
}

// FormatROCDate renders a ROC calendar date in the long transcript form.
func FormatROCDate(rocYear, month, day int) string {
	return fmt.Sprintf("民國%d年%02d月%02d日", rocYear, month, day)
}

// ParseDate extracts the first date in text and normalizes it to
// YYYY-MM-DD. The first dialect that matches wins.
func ParseDate(text string) (string, bool) {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return m[0], true
	}
	if m := rocDatePattern.FindStringSubmatch(text); m != nil {
		return isoFromParts(RocToAD(atoi(m[1])), atoi(m[2]), atoi(m[3])), true
	}
	if m := adDatePattern.FindStringSubmatch(text); m != nil {
		return isoFromParts(atoi(m[1]), atoi(m[2]), atoi(m[3])), true
	}
	if m := dotDatePattern.FindStringSubmatch(text); m != nil {
		year := atoi(m[1])
		// Two or three leading digits under 200 cannot be Gregorian.
		if year < 200 {
			return isoFromParts(RocToAD(year), atoi(m[2]), atoi(m[3])), true
		}
	}
	return "", false
}

// ParseROCDate parses only the ROC long form.
func ParseROCDate(text string) (string, bool) {
	m := rocDatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return isoFromParts(RocToAD(atoi(m[1])), atoi(m[2]), atoi(m[3])), true
}

func isoFromParts(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
