package payload

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// Validate checks the record against the canonical schema. Structural
// violations (missing sections, wrong types, out-of-range confidences)
// surface as validation errors; semantic checks like share-ratio sums
// live with the field parsers, not here.
func (p *TranscriptPayload) Validate() error {
	raw, err := json.Marshal(p)
	if err != nil {
		return ocrerr.NewProcessingError("serializing record for validation", err, nil)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ocrerr.NewProcessingError("reparsing record for validation", err, nil)
	}
	if err := recordSchema.Validate(doc); err != nil {
		return ocrerr.NewValidationError("record violates transcript schema",
			map[string]interface{}{"cause": err.Error()})
	}
	return nil
}

var recordSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("transcript.schema.json", strings.NewReader(recordSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("transcript.schema.json")
}()

const recordSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["metadata", "register_office", "document_type", "sections", "audit"],
  "properties": {
    "metadata": {
      "type": "object",
      "required": ["document_id", "property_id", "source_file", "processed_at", "ocr_engine"],
      "properties": {
        "document_id": {"type": "string", "format": "uuid"},
        "property_id": {"type": "string", "format": "uuid"},
        "source_file": {"type": "string"},
        "processed_at": {"type": "string", "format": "date-time"},
        "ocr_engine": {
          "type": "object",
          "required": ["name", "version", "confidence"],
          "properties": {
            "name": {"type": "string"},
            "version": {"type": "string"},
            "confidence": {"type": "number", "minimum": 0, "maximum": 1}
          }
        }
      }
    },
    "register_office": {"type": "string"},
    "document_type": {"type": "string"},
    "sections": {
      "type": "object",
      "required": ["basic", "ownerships", "building_profile", "area_summary", "encumbrances", "raw_text", "confidence_notes"],
      "properties": {
        "basic": {
          "type": "object",
          "required": ["build_register_number", "land_register_numbers"],
          "properties": {
            "build_register_number": {"type": "string"},
            "land_register_numbers": {"type": "array", "items": {"type": "string"}},
            "survey_date": {"type": "string"},
            "registration_date": {"type": "string"},
            "registration_reason": {"type": "string"}
          }
        },
        "ownerships": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["holder", "share_ratio"],
            "properties": {
              "holder": {
                "type": "object",
                "required": ["name", "id_number_masked", "address"],
                "properties": {
                  "name": {"type": "string"},
                  "id_number_masked": {"type": "string"},
                  "address": {"type": "string"},
                  "contact": {"type": "string"}
                }
              },
              "share_ratio": {"type": "string"},
              "acquisition_reason": {"type": "string"},
              "acquisition_date": {"type": "string"}
            }
          }
        },
        "building_profile": {
          "type": "object",
          "required": ["location", "structure", "main_use", "floors"],
          "properties": {
            "location": {"type": "string"},
            "structure": {"type": "string"},
            "main_use": {"type": "string"},
            "floors": {
              "type": "object",
              "required": ["above_ground", "underground"],
              "properties": {
                "above_ground": {"type": "integer", "minimum": 0},
                "underground": {"type": "integer", "minimum": 0}
              }
            },
            "completion_date": {"type": "string"}
          }
        },
        "area_summary": {
          "type": "object",
          "required": ["units", "main_building", "accessory_building", "balcony", "public_facilities", "total", "converted_ping"],
          "properties": {
            "units": {"type": "string", "enum": ["square_meter"]},
            "main_building": {"type": "number", "minimum": 0},
            "accessory_building": {"type": "number", "minimum": 0},
            "balcony": {"type": "number", "minimum": 0},
            "public_facilities": {"type": "number", "minimum": 0},
            "total": {"type": "number", "minimum": 0},
            "converted_ping": {
              "type": "object",
              "additionalProperties": {"type": "number", "minimum": 0}
            }
          }
        },
        "encumbrances": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "creditor", "amount_twd"],
            "properties": {
              "type": {"type": "string"},
              "creditor": {"type": "string"},
              "amount_twd": {"type": "integer", "minimum": 0},
              "registration_date": {"type": "string"}
            }
          }
        },
        "raw_text": {"type": "string"},
        "confidence_notes": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["field", "confidence", "status"],
            "properties": {
              "field": {"type": "string"},
              "confidence": {"type": "number", "minimum": 0, "maximum": 1},
              "status": {"type": "string", "enum": ["needs_review", "confirmed"]}
            }
          }
        }
      }
    },
    "audit": {
      "type": "object",
      "required": ["processed_by", "review_status", "checksum"],
      "properties": {
        "processed_by": {"type": "string"},
        "review_status": {"type": "string", "enum": ["pending", "confirmed", "rejected"]},
        "checksum": {"type": "string"}
      }
    }
  }
}`
