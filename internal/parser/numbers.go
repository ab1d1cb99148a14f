/**
 * Register number parsers for building title transcripts
 *
 * Extracts land register numbers (地號) and building register numbers (建號)
 * from recognized transcript text. All parsers are stateless: a missing
 * field reports ok=false, never an error.
 */

package parser

import "regexp"

// Land numbers follow [段名][number(-number)]地號, e.g. 松山段一小段0000地號.
var landNumberPattern = regexp.MustCompile(`([^\d\s]+段(?:[^\d\s]+段)?)\s*(\d+(?:-\d+)?)\s*地號`)

// Building numbers follow [district]建字第[number]號, e.g. 松山建字第000123號.
var buildNumberPattern = regexp.MustCompile(`([^\d\s]+)建字第(\d+)號`)

// ParseLandNumber returns the first land register number found in text,
// normalized to 段名+號碼+"地號".
func ParseLandNumber(text string) (string, bool) {
	m := landNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1] + m[2] + "地號", true
}

// ParseLandNumbers returns every land register number in text, in order of
// appearance. Multi-parcel documents commonly list several.
func ParseLandNumbers(text string) []string {
	matches := landNumberPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, m[1]+m[2]+"地號")
	}
	return results
}

// LandSection extracts the land section name (段名) from text.
func LandSection(text string) (string, bool) {
	m := landNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseBuildNumber returns the first building register number found in text,
// normalized to 地區名+"建字第"+號碼+"號".
func ParseBuildNumber(text string) (string, bool) {
	m := buildNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1] + "建字第" + m[2] + "號", true
}

// BuildDistrict extracts the district name from a building register number.
func BuildDistrict(text string) (string, bool) {
	m := buildNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
