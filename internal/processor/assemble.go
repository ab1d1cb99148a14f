/**
 * Record assembly
 *
 * Folds the recognizer's structured fields and the pattern parsers'
 * findings into the canonical record. Every field is independently
 * optional: a transcript yielding only a building number still produces
 * a valid record with the rest empty and flagged in confidence notes.
 */

package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/landreg/transcript-worker/internal/engine"
	"github.com/landreg/transcript-worker/internal/parser"
	"github.com/landreg/transcript-worker/internal/payload"
	"github.com/landreg/transcript-worker/internal/preprocess"
)

// areaTolerance is the allowed drift between the stated total and the sum
// of the area parts before the record is flagged for review.
const areaTolerance = 0.01

func (p *TranscriptProcessor) assemble(req *Request, pages []*preprocess.PageResult, recog *engine.RecognitionResult, embedded string) (*payload.TranscriptPayload, error) {
	record := payload.New(req.Filename)
	if _, err := uuid.Parse(req.PropertyID); err == nil {
		record.Metadata.PropertyID = req.PropertyID
	}

	fields := recog.Fields
	mined := minedText(fields)
	if embedded != "" {
		mined = mined + "\n" + embedded
	}

	record.RegisterOffice = stringField(fields.DocumentInfo, "issuing_office")
	record.DocumentType = stringField(fields.DocumentInfo, "document_type")
	if record.DocumentType == "" {
		record.DocumentType = "建物登記第二類謄本"
	}

	assembleBasic(record, fields, mined)
	assembleOwnerships(record, fields, mined)
	assembleProfile(record, fields, mined)
	assembleAreas(record, fields, mined)

	record.Sections.RawText = rawTextWithNotes(fields)
	record.Audit.ProcessedBy = p.cfg.ProcessedBy

	record.Metadata.OCREngine = payload.Engine{
		Name:       recog.EngineName,
		Version:    p.cfg.Version,
		Confidence: overallConfidence(pages),
	}

	addConfidenceNotes(record, pages, recog)
	return record, nil
}

func assembleBasic(record *payload.TranscriptPayload, fields *engine.Fields, mined string) {
	basic := &record.Sections.Basic

	basic.BuildRegisterNumber = stringField(fields.BuildingBasicInfo, "building_number")
	if basic.BuildRegisterNumber == "" {
		if num, ok := parser.ParseBuildNumber(mined); ok {
			basic.BuildRegisterNumber = num
		}
	}

	if lot := stringField(fields.BuildingBasicInfo, "land_lot_number"); lot != "" {
		if nums := parser.ParseLandNumbers(lot); len(nums) > 0 {
			basic.LandRegisterNumbers = nums
		} else {
			basic.LandRegisterNumbers = []string{lot}
		}
	}
	if len(basic.LandRegisterNumbers) == 0 {
		if nums := parser.ParseLandNumbers(mined); len(nums) > 0 {
			basic.LandRegisterNumbers = nums
		}
	}

	if len(fields.OwnershipInfo) > 0 {
		if iso, ok := parser.ParseDate(stringField(fields.OwnershipInfo[0], "registration_date")); ok {
			basic.RegistrationDate = iso
		}
	}
	if iso, ok := parser.ParseDate(stringField(fields.BuildingCharacteristics, "building_registration_date")); ok && basic.RegistrationDate == "" {
		basic.RegistrationDate = iso
	}
}

func assembleOwnerships(record *payload.TranscriptPayload, fields *engine.Fields, mined string) {
	for _, entry := range fields.OwnershipInfo {
		ownership := payload.Ownership{
			Holder: payload.Holder{
				Name:           stringField(entry, "owner"),
				IDNumberMasked: parser.MaskID(stringField(entry, "owner_id_number")),
				Address:        stringField(entry, "owner_address"),
			},
		}
		if ratio, ok := parser.ParseShareRatio(stringField(entry, "ownership_share")); ok {
			ownership.ShareRatio = ratio
		} else {
			ownership.ShareRatio = stringField(entry, "ownership_share")
		}
		if iso, ok := parser.ParseDate(stringField(entry, "cause_date")); ok {
			ownership.AcquisitionDate = iso
		}
		if ownership.Holder.Name != "" || ownership.ShareRatio != "" {
			record.Sections.Ownerships = append(record.Sections.Ownerships, ownership)
		}
	}

	// Raw-text fallback for engines that only yield text.
	if len(record.Sections.Ownerships) == 0 {
		owner := parser.ParseOwnerBlock(mined)
		if owner.Name != "" {
			record.Sections.Ownerships = append(record.Sections.Ownerships, payload.Ownership{
				Holder: payload.Holder{
					Name:           owner.Name,
					IDNumberMasked: owner.IDNumberMasked,
					Address:        owner.Address,
				},
				ShareRatio: owner.ShareRatio,
			})
		}
	}
}

func assembleProfile(record *payload.TranscriptPayload, fields *engine.Fields, mined string) {
	profile := &record.Sections.BuildingProfile

	profile.Location = stringField(fields.BuildingCharacteristics, "building_address")
	if profile.Location == "" {
		profile.Location = stringField(fields.BuildingBasicInfo, "address")
	}
	profile.Structure = stringField(fields.BuildingCharacteristics, "main_structure")
	profile.MainUse = stringField(fields.BuildingCharacteristics, "main_use")
	profile.Floors.AboveGround = floorCount(stringField(fields.BuildingCharacteristics, "total_floors"))

	if iso, ok := parser.ParseDate(stringField(fields.BuildingCharacteristics, "construction_completion_date")); ok {
		profile.CompletionDate = iso
	}
}

func assembleAreas(record *payload.TranscriptPayload, fields *engine.Fields, mined string) {
	area := &record.Sections.AreaSummary

	summary := parser.ParseAreaSummary(mined)
	area.MainBuilding = summary["main_building"]
	area.AccessoryBuilding = summary["accessory_building"]
	area.Balcony = summary["balcony"]
	area.PublicFacilities = summary["public_facilities"]
	area.Total = summary["total"]

	if area.PublicFacilities == 0 {
		if shared, ok := numberField(fields.SharedAreas, "shared_area_sqm"); ok {
			area.PublicFacilities = shared
		}
	}

	for key, value := range map[string]float64{
		"main_building":      area.MainBuilding,
		"accessory_building": area.AccessoryBuilding,
		"balcony":            area.Balcony,
		"public_facilities":  area.PublicFacilities,
		"total":              area.Total,
	} {
		if value > 0 {
			area.ConvertedPing[key] = parser.ToPing(value)
		}
	}
}

func addConfidenceNotes(record *payload.TranscriptPayload, pages []*preprocess.PageResult, recog *engine.RecognitionResult) {
	notes := &record.Sections.ConfidenceNotes

	for _, page := range pages {
		for range page.Warnings {
			*notes = append(*notes, payload.ConfidenceNote{
				Field:      fmt.Sprintf("sections.raw_text (page %d)", page.Index+1),
				Confidence: page.Quality.Score,
				Status:     payload.NoteNeedsReview,
			})
		}
	}

	for _, conflict := range recog.Conflicts {
		*notes = append(*notes, payload.ConfidenceNote{
			Field:      "sections: " + conflict,
			Confidence: 0.5,
			Status:     payload.NoteNeedsReview,
		})
	}

	if record.Sections.Basic.BuildRegisterNumber == "" {
		*notes = append(*notes, payload.ConfidenceNote{
			Field:      "sections.basic.build_register_number",
			Confidence: 0,
			Status:     payload.NoteNeedsReview,
		})
	}
	if len(record.Sections.Basic.LandRegisterNumbers) == 0 {
		*notes = append(*notes, payload.ConfidenceNote{
			Field:      "sections.basic.land_register_numbers",
			Confidence: 0,
			Status:     payload.NoteNeedsReview,
		})
	}
	if len(record.Sections.Ownerships) == 0 {
		*notes = append(*notes, payload.ConfidenceNote{
			Field:      "sections.ownerships",
			Confidence: 0,
			Status:     payload.NoteNeedsReview,
		})
	}

	area := record.Sections.AreaSummary
	if area.Total > 0 {
		parts := area.MainBuilding + area.AccessoryBuilding + area.Balcony + area.PublicFacilities
		if parts > 0 && abs(area.Total-parts) > areaTolerance {
			*notes = append(*notes, payload.ConfidenceNote{
				Field:      "sections.area_summary.total",
				Confidence: 0.5,
				Status:     payload.NoteNeedsReview,
			})
		}
	}

	if len(record.Sections.Ownerships) > 0 {
		ratios := make([]string, 0, len(record.Sections.Ownerships))
		for _, o := range record.Sections.Ownerships {
			ratios = append(ratios, o.ShareRatio)
		}
		if !parser.ValidateShareSum(ratios) {
			*notes = append(*notes, payload.ConfidenceNote{
				Field:      "sections.ownerships",
				Confidence: 0.5,
				Status:     payload.NoteNeedsReview,
			})
		}
	}
}

// minedText flattens every textual value the recognizer produced into one
// blob for the pattern parsers.
func minedText(fields *engine.Fields) string {
	var parts []string
	add := func(m map[string]any) {
		for _, v := range m {
			switch t := v.(type) {
			case string:
				parts = append(parts, t)
			case []any:
				for _, item := range t {
					if s, ok := item.(string); ok {
						parts = append(parts, s)
					}
				}
			}
		}
	}
	add(fields.DocumentInfo)
	add(fields.BuildingBasicInfo)
	add(fields.BuildingCharacteristics)
	add(fields.SharedAreas)
	for _, owner := range fields.OwnershipInfo {
		add(owner)
	}
	parts = append(parts, fields.Notes...)
	if fields.RawText != "" {
		parts = append(parts, fields.RawText)
	}
	return strings.Join(parts, "\n")
}

func rawTextWithNotes(fields *engine.Fields) string {
	raw := strings.TrimSpace(fields.RawText)
	if len(fields.Notes) == 0 {
		return raw
	}
	noteBlock := "備註：" + strings.Join(fields.Notes, "；")
	if raw == "" {
		return noteBlock
	}
	return raw + "\n" + noteBlock
}

// overallConfidence averages page quality scores; the recognizer itself
// reports no calibrated confidence, so scan quality is the best proxy.
func overallConfidence(pages []*preprocess.PageResult) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, page := range pages {
		sum += page.Quality.Score
	}
	return sum / float64(len(pages))
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func numberField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch t := m[key].(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// floorCount extracts the floor count from forms like "018層" or "12層".
func floorCount(s string) int {
	digits := strings.Builder{}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
