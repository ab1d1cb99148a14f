/**
 * Canonical transcript record
 *
 * The typed payload other layers depend on: API responses serialize it,
 * persistence stores it, review tooling routes on its confidence notes.
 * Field names and nesting are a stable contract; changes here are
 * breaking changes for every consumer.
 */

package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// Review statuses carried in the audit block.
const (
	ReviewPending   = "pending"
	ReviewConfirmed = "confirmed"
	ReviewRejected  = "rejected"
)

// Confidence note statuses.
const (
	NoteNeedsReview = "needs_review"
	NoteConfirmed   = "confirmed"
)

// TranscriptPayload is the complete structured record for one processed
// building title transcript.
type TranscriptPayload struct {
	Metadata       Metadata `json:"metadata"`
	RegisterOffice string   `json:"register_office"`
	DocumentType   string   `json:"document_type"`
	Sections       Sections `json:"sections"`
	Audit          Audit    `json:"audit"`
}

type Metadata struct {
	DocumentID  string    `json:"document_id"`
	PropertyID  string    `json:"property_id"`
	SourceFile  string    `json:"source_file"`
	ProcessedAt time.Time `json:"processed_at"`
	OCREngine   Engine    `json:"ocr_engine"`
}

// Engine identifies the recognizer that produced the record.
type Engine struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
}

type Sections struct {
	Basic           BasicInfo        `json:"basic"`
	Ownerships      []Ownership      `json:"ownerships"`
	BuildingProfile BuildingProfile  `json:"building_profile"`
	AreaSummary     AreaSummary      `json:"area_summary"`
	Encumbrances    []Encumbrance    `json:"encumbrances"`
	RawText         string           `json:"raw_text"`
	ConfidenceNotes []ConfidenceNote `json:"confidence_notes"`
}

type BasicInfo struct {
	BuildRegisterNumber string   `json:"build_register_number"`
	LandRegisterNumbers []string `json:"land_register_numbers"`
	SurveyDate          string   `json:"survey_date"`
	RegistrationDate    string   `json:"registration_date"`
	RegistrationReason  string   `json:"registration_reason"`
}

type Ownership struct {
	Holder            Holder `json:"holder"`
	ShareRatio        string `json:"share_ratio"`
	AcquisitionReason string `json:"acquisition_reason"`
	AcquisitionDate   string `json:"acquisition_date"`
}

type Holder struct {
	Name           string `json:"name"`
	IDNumberMasked string `json:"id_number_masked"`
	Address        string `json:"address"`
	Contact        string `json:"contact,omitempty"`
}

type BuildingProfile struct {
	Location       string     `json:"location"`
	Structure      string     `json:"structure"`
	MainUse        string     `json:"main_use"`
	Floors         FloorsInfo `json:"floors"`
	CompletionDate string     `json:"completion_date"`
}

type FloorsInfo struct {
	AboveGround int `json:"above_ground"`
	Underground int `json:"underground"`
}

// AreaSummary carries the square-meter breakdown plus the customary ping
// conversions.
type AreaSummary struct {
	Units             string             `json:"units"`
	MainBuilding      float64            `json:"main_building"`
	AccessoryBuilding float64            `json:"accessory_building"`
	Balcony           float64            `json:"balcony"`
	PublicFacilities  float64            `json:"public_facilities"`
	Total             float64            `json:"total"`
	ConvertedPing     map[string]float64 `json:"converted_ping"`
}

type Encumbrance struct {
	Type             string `json:"type"`
	Creditor         string `json:"creditor"`
	AmountTWD        int64  `json:"amount_twd"`
	RegistrationDate string `json:"registration_date"`
}

// ConfidenceNote flags one field path for review routing.
type ConfidenceNote struct {
	Field      string  `json:"field"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

type Audit struct {
	ProcessedBy  string `json:"processed_by"`
	ReviewStatus string `json:"review_status"`
	Checksum     string `json:"checksum"`
}

// New builds an empty payload skeleton with fresh identifiers and the
// list fields initialized, so the serialized form always carries arrays
// instead of nulls.
func New(sourceFile string) *TranscriptPayload {
	return &TranscriptPayload{
		Metadata: Metadata{
			DocumentID:  uuid.NewString(),
			PropertyID:  uuid.NewString(),
			SourceFile:  sourceFile,
			ProcessedAt: time.Now().UTC(),
		},
		Sections: Sections{
			Ownerships:      []Ownership{},
			Encumbrances:    []Encumbrance{},
			ConfidenceNotes: []ConfidenceNote{},
			Basic: BasicInfo{
				LandRegisterNumbers: []string{},
			},
			AreaSummary: AreaSummary{
				Units:         "square_meter",
				ConvertedPing: map[string]float64{},
			},
		},
		Audit: Audit{
			ReviewStatus: ReviewPending,
		},
	}
}

// Checksum computes the record digest over everything except the checksum
// itself.
func (p *TranscriptPayload) Checksum() (string, error) {
	clone := *p
	clone.Audit.Checksum = ""
	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Seal fills in the audit checksum. Call after the last mutation; any
// later change invalidates the digest.
func (p *TranscriptPayload) Seal() error {
	sum, err := p.Checksum()
	if err != nil {
		return ocrerr.NewProcessingError("computing record checksum", err, nil)
	}
	p.Audit.Checksum = sum
	return nil
}

// VerifyChecksum reports whether the sealed digest still matches the
// record content.
func (p *TranscriptPayload) VerifyChecksum() bool {
	sum, err := p.Checksum()
	if err != nil {
		return false
	}
	return sum == p.Audit.Checksum
}

// Marshal serializes the canonical JSON form.
func (p *TranscriptPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal parses a serialized record.
func Unmarshal(data []byte) (*TranscriptPayload, error) {
	var p TranscriptPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ocrerr.NewValidationError("malformed transcript record",
			map[string]interface{}{"cause": err.Error()})
	}
	return &p, nil
}
