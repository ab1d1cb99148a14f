package payload

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

func validPayload() *TranscriptPayload {
	p := New("102AF006705REG.pdf")
	p.Metadata.OCREngine = Engine{Name: "deepseek-deepseek-chat", Version: "v1", Confidence: 0.94}
	p.RegisterOffice = "臺北市松山地政事務所"
	p.DocumentType = "建物登記第二類謄本"
	p.Sections.Basic = BasicInfo{
		BuildRegisterNumber: "松山建字第000000號",
		LandRegisterNumbers: []string{"松山段一小段0000地號"},
		RegistrationDate:    "2023-12-01",
		RegistrationReason:  "繼承",
	}
	p.Sections.Ownerships = []Ownership{
		{
			Holder:            Holder{Name: "王大明", IDNumberMasked: "A123***789", Address: "臺北市松山區八德路四段"},
			ShareRatio:        "1/1",
			AcquisitionReason: "繼承",
			AcquisitionDate:   "2023-12-01",
		},
	}
	p.Sections.BuildingProfile = BuildingProfile{
		Location:       "臺北市松山區八德路四段200號",
		Structure:      "鋼筋混凝土造",
		MainUse:        "住家用",
		Floors:         FloorsInfo{AboveGround: 12, Underground: 0},
		CompletionDate: "2015-07-30",
	}
	p.Sections.AreaSummary = AreaSummary{
		Units:             "square_meter",
		MainBuilding:      84.32,
		AccessoryBuilding: 6.51,
		Balcony:           8.03,
		PublicFacilities:  24.11,
		Total:             122.97,
		ConvertedPing:     map[string]float64{"total": 37.2, "main_building": 25.51},
	}
	p.Sections.RawText = "建物登記第二類謄本..."
	p.Audit.ProcessedBy = "transcript-worker"
	return p
}

func TestNewInitializesIdentifiersAndLists(t *testing.T) {
	p := New("scan.pdf")

	_, err := uuid.Parse(p.Metadata.DocumentID)
	assert.NoError(t, err)
	_, err = uuid.Parse(p.Metadata.PropertyID)
	assert.NoError(t, err)

	assert.Equal(t, "scan.pdf", p.Metadata.SourceFile)
	assert.WithinDuration(t, time.Now().UTC(), p.Metadata.ProcessedAt, time.Minute)
	assert.Equal(t, ReviewPending, p.Audit.ReviewStatus)

	// Lists serialize as arrays, never null.
	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ownerships":[]`)
	assert.Contains(t, string(raw), `"land_register_numbers":[]`)
	assert.Contains(t, string(raw), `"confidence_notes":[]`)
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	p := validPayload()
	require.NoError(t, p.Seal())
	assert.NoError(t, p.Validate())
}

func TestValidateAcceptsSparseRecord(t *testing.T) {
	// A record where parsing found nothing still validates; absence is
	// signaled by empty values, not by dropping sections.
	p := New("sparse.pdf")
	p.Metadata.OCREngine = Engine{Name: "tesseract-local", Version: "v1", Confidence: 0.3}
	p.Audit.ProcessedBy = "transcript-worker"
	require.NoError(t, p.Seal())
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsBadConfidence(t *testing.T) {
	p := validPayload()
	p.Metadata.OCREngine.Confidence = 1.7
	require.NoError(t, p.Seal())

	err := p.Validate()
	require.Error(t, err)
	var pErr *ocrerr.PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ocrerr.ErrorValidation, pErr.Code)
}

func TestValidateRejectsBadUUID(t *testing.T) {
	p := validPayload()
	p.Metadata.DocumentID = "not-a-uuid"
	require.NoError(t, p.Seal())
	assert.Error(t, p.Validate())
}

func TestValidateRejectsBadReviewStatus(t *testing.T) {
	p := validPayload()
	p.Audit.ReviewStatus = "maybe"
	require.NoError(t, p.Seal())
	assert.Error(t, p.Validate())
}

func TestValidateRejectsNegativeArea(t *testing.T) {
	p := validPayload()
	p.Sections.AreaSummary.Balcony = -1
	require.NoError(t, p.Seal())
	assert.Error(t, p.Validate())
}

func TestSealAndVerifyChecksum(t *testing.T) {
	p := validPayload()
	require.NoError(t, p.Seal())
	assert.NotEmpty(t, p.Audit.Checksum)
	assert.True(t, p.VerifyChecksum())

	p.RegisterOffice = "改過的機關"
	assert.False(t, p.VerifyChecksum(), "content change must break the digest")
}

func TestChecksumIgnoresItself(t *testing.T) {
	p := validPayload()
	before, err := p.Checksum()
	require.NoError(t, err)
	require.NoError(t, p.Seal())
	after, err := p.Checksum()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMarshalRoundTrip(t *testing.T) {
	p := validPayload()
	require.NoError(t, p.Seal())

	raw, err := p.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, p.Metadata.DocumentID, restored.Metadata.DocumentID)
	assert.Equal(t, p.Sections.AreaSummary.Total, restored.Sections.AreaSummary.Total)
	assert.True(t, restored.VerifyChecksum())
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	require.Error(t, err)
	var pErr *ocrerr.PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ocrerr.ErrorValidation, pErr.Code)
}
