/**
 * Recognition engines for transcript pages
 *
 * An Engine turns one preprocessed page image into the six-section
 * structured form of a building title transcript. Vision-language models
 * carry the primary load; a local Tesseract adapter sits last in the
 * roster and yields raw text for the field parsers to mine.
 */

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fields is the structured output of one recognition attempt, following
// the six-section transcript form.
type Fields struct {
	DocumentInfo            map[string]any `json:"document_info,omitempty"`
	BuildingBasicInfo       map[string]any `json:"building_basic_info,omitempty"`
	BuildingCharacteristics map[string]any `json:"building_characteristics,omitempty"`
	SharedAreas             map[string]any `json:"shared_areas,omitempty"`
	OwnershipInfo           OwnershipList  `json:"ownership_info,omitempty"`
	Notes                   []string       `json:"notes,omitempty"`
	RawText                 string         `json:"raw_text,omitempty"`
}

// OwnershipList tolerates both shapes models produce: a single ownership
// object for sole-owner transcripts and an array for co-owned ones.
type OwnershipList []map[string]any

func (l *OwnershipList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var single map[string]any
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = OwnershipList{single}
		return nil
	}
	var many []map[string]any
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Empty reports whether the attempt produced nothing usable.
func (f *Fields) Empty() bool {
	return f == nil ||
		(len(f.DocumentInfo) == 0 &&
			len(f.BuildingBasicInfo) == 0 &&
			len(f.BuildingCharacteristics) == 0 &&
			len(f.SharedAreas) == 0 &&
			len(f.OwnershipInfo) == 0 &&
			len(f.Notes) == 0 &&
			strings.TrimSpace(f.RawText) == "")
}

// Engine is one recognition backend.
type Engine interface {
	// Name identifies the engine in logs and result metadata.
	Name() string

	// Ready reports whether the engine can be attempted at all, e.g.
	// whether its credential is configured. Unready engines are skipped
	// silently during failover.
	Ready() bool

	// Recognize extracts the structured form from one PNG-encoded page.
	Recognize(ctx context.Context, pagePNG []byte) (*Fields, error)
}

// EngineFailure records one failed attempt during failover.
type EngineFailure struct {
	Engine string `json:"engine"`
	Reason string `json:"reason"`
}

// RecognitionResult is the merged outcome across all pages of a document.
type RecognitionResult struct {
	Fields      *Fields         `json:"fields"`
	EngineName  string          `json:"engine_name"`
	ProcessedAt time.Time       `json:"processed_at"`
	Failures    []EngineFailure `json:"failures,omitempty"`
	Conflicts   []string        `json:"conflicts,omitempty"`
}

// MergePages folds per-page fields into one document-level Fields. For
// scalar keys the first non-empty page wins; list keys take the ordered
// union; ownership entries accumulate across pages. Pages that disagree
// on a scalar produce a conflict note rather than silently losing data.
func MergePages(pages []*Fields) (*Fields, []string) {
	merged := &Fields{
		DocumentInfo:            map[string]any{},
		BuildingBasicInfo:       map[string]any{},
		BuildingCharacteristics: map[string]any{},
		SharedAreas:             map[string]any{},
	}
	var conflicts []string
	var rawParts []string
	seenNote := map[string]bool{}
	seenOwner := map[string]bool{}

	for _, page := range pages {
		if page == nil {
			continue
		}
		conflicts = append(conflicts, mergeSection("document_info", merged.DocumentInfo, page.DocumentInfo)...)
		conflicts = append(conflicts, mergeSection("building_basic_info", merged.BuildingBasicInfo, page.BuildingBasicInfo)...)
		conflicts = append(conflicts, mergeSection("building_characteristics", merged.BuildingCharacteristics, page.BuildingCharacteristics)...)
		conflicts = append(conflicts, mergeSection("shared_areas", merged.SharedAreas, page.SharedAreas)...)

		for _, owner := range page.OwnershipInfo {
			key := ownerIdentity(owner)
			if !seenOwner[key] {
				seenOwner[key] = true
				merged.OwnershipInfo = append(merged.OwnershipInfo, owner)
			}
		}
		for _, note := range page.Notes {
			if note = strings.TrimSpace(note); note != "" && !seenNote[note] {
				seenNote[note] = true
				merged.Notes = append(merged.Notes, note)
			}
		}
		if raw := strings.TrimSpace(page.RawText); raw != "" {
			rawParts = append(rawParts, raw)
		}
	}

	merged.RawText = strings.Join(rawParts, "\n")
	return merged, conflicts
}

// mergeSection folds src into dst. List values take the ordered union,
// scalars keep the first non-empty value; a differing later value becomes
// a conflict note.
func mergeSection(section string, dst, src map[string]any) []string {
	var conflicts []string
	for key, value := range src {
		if isEmptyValue(value) {
			continue
		}
		existing, ok := dst[key]
		if !ok || isEmptyValue(existing) {
			dst[key] = value
			continue
		}
		if la, ok := asStringList(existing); ok {
			if lb, ok := asStringList(value); ok {
				dst[key] = unionStrings(la, lb)
				continue
			}
		}
		if fmt.Sprintf("%v", existing) != fmt.Sprintf("%v", value) {
			conflicts = append(conflicts, fmt.Sprintf("%s.%s differs across pages: %v vs %v", section, key, existing, value))
		}
	}
	return conflicts
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func asStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func ownerIdentity(owner map[string]any) string {
	name, _ := owner["owner"].(string)
	share, _ := owner["ownership_share"].(string)
	order, _ := owner["registration_order"].(string)
	if name == "" && share == "" && order == "" {
		raw, _ := json.Marshal(owner)
		return string(raw)
	}
	return name + "|" + share + "|" + order
}
