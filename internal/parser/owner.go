/**
 * Owner information extraction (權利人資訊)
 *
 * Pulls name, national ID and address via independent anchored patterns.
 * ID numbers are masked before leaving the parser so raw identifiers never
 * reach payloads or logs.
 */

package parser

import (
	"regexp"
	"strings"
)

var (
	ownerNamePattern    = regexp.MustCompile(`權利人[：:]\s*([^\n\s]+)`)
	ownerIDPattern      = regexp.MustCompile(`統一編號[：:]\s*([A-Z0-9]+)`)
	ownerAddressPattern = regexp.MustCompile(`住址[：:]\s*([^\n]+)`)
)

// OwnerInfo is the extracted owner block. Absent fields stay empty.
type OwnerInfo struct {
	Name           string
	IDNumberMasked string
	Address        string
	ShareRatio     string
}

// ParseOwnerName extracts the owner's name.
func ParseOwnerName(text string) (string, bool) {
	m := ownerNamePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ParseOwnerID extracts the national ID, masked by default.
func ParseOwnerID(text string, mask bool) (string, bool) {
	m := ownerIDPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	id := m[1]
	if mask {
		return MaskID(id), true
	}
	return id, true
}

// MaskID masks the middle of a national ID, keeping the first 4 and last 3
// characters: A123456789 -> A123***789. IDs shorter than 10 characters are
// returned untouched; there is nothing safe to keep.
func MaskID(id string) string {
	if len(id) < 10 {
		return id
	}
	return id[:4] + "***" + id[len(id)-3:]
}

// ParseOwnerAddress extracts the owner's registered address.
func ParseOwnerAddress(text string) (string, bool) {
	m := ownerAddressPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ParseOwnerBlock extracts the complete owner information block, including
// the ownership share found in the same block.
func ParseOwnerBlock(text string) OwnerInfo {
	info := OwnerInfo{}
	info.Name, _ = ParseOwnerName(text)
	info.IDNumberMasked, _ = ParseOwnerID(text, true)
	info.Address, _ = ParseOwnerAddress(text)
	info.ShareRatio, _ = ParseShareRatio(text)
	return info
}
