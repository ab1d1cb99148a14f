/**
 * Area parsing and unit conversion
 *
 * Transcripts record areas in square meters (平方公尺) or ping (坪).
 * Conversion uses the fixed constant 1 坪 = 3.30579 平方公尺, rounded to
 * two decimal places.
 */

package parser

import (
	"math"
	"regexp"
	"strconv"
)

// PingToSquareMeterRatio is the legal conversion constant.
const PingToSquareMeterRatio = 3.30579

var (
	sqmPattern  = regexp.MustCompile(`([\d.]+)\s*平方公[尺寸]`)
	pingPattern = regexp.MustCompile(`([\d.]+)\s*坪`)

	// Named sub-area patterns; each is matched independently so any
	// subset may be present in a given transcript.
	mainBuildingPattern = regexp.MustCompile(`主建物(?:面積)?[：:]\s*([\d.]+)`)
	accessoryPattern    = regexp.MustCompile(`附屬建物[：:]\s*([\d.]+)`)
	balconyPattern      = regexp.MustCompile(`陽台[：:]\s*([\d.]+)`)
	publicPattern       = regexp.MustCompile(`共有部分[：:]\s*([\d.]+)`)
	totalPattern        = regexp.MustCompile(`合計[：:]\s*([\d.]+)`)
)

// Area is a parsed magnitude with its recognized unit.
type Area struct {
	Value float64
	Unit  string // "square_meter" or "ping"
}

// ParseArea extracts the first area measurement from text. Square-meter
// markers are checked before ping markers.
func ParseArea(text string) (Area, bool) {
	if m := sqmPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return Area{Value: v, Unit: "square_meter"}, true
		}
	}
	if m := pingPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return Area{Value: v, Unit: "ping"}, true
		}
	}
	return Area{}, false
}

// ToPing converts square meters to ping, rounded to 2 decimals.
func ToPing(squareMeters float64) float64 {
	return round2(squareMeters / PingToSquareMeterRatio)
}

// ToSquareMeter converts ping to square meters, rounded to 2 decimals.
func ToSquareMeter(ping float64) float64 {
	return round2(ping * PingToSquareMeterRatio)
}

// ParseAreaSummary extracts the named sub-areas of an area breakdown block:
// main_building, accessory_building, balcony, public_facilities and total.
// Returns nil when none of the five is present.
func ParseAreaSummary(text string) map[string]float64 {
	result := make(map[string]float64)

	parts := []struct {
		key     string
		pattern *regexp.Regexp
	}{
		{"main_building", mainBuildingPattern},
		{"accessory_building", accessoryPattern},
		{"balcony", balconyPattern},
		{"public_facilities", publicPattern},
		{"total", totalPattern},
	}

	for _, p := range parts {
		m := p.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result[p.key] = v
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
