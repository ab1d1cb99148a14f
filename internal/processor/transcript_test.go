package processor

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landreg/transcript-worker/internal/cache"
	"github.com/landreg/transcript-worker/internal/engine"
	"github.com/landreg/transcript-worker/internal/ocrerr"
	"github.com/landreg/transcript-worker/internal/preprocess"
	"github.com/landreg/transcript-worker/internal/retrier"
)

// scriptedEngine returns canned fields and counts calls.
type scriptedEngine struct {
	fields *engine.Fields
	err    error
	calls  int
}

func (s *scriptedEngine) Name() string { return "scripted" }
func (s *scriptedEngine) Ready() bool  { return true }
func (s *scriptedEngine) Recognize(ctx context.Context, pagePNG []byte) (*engine.Fields, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.fields, nil
}

func testPagePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 160))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	for y := 20; y < 28; y++ {
		for x := 10; x < 110; x++ {
			img.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	png, err := preprocess.EncodePNG(img)
	require.NoError(t, err)
	return png
}

func newTestProcessor(t *testing.T, eng engine.Engine) *TranscriptProcessor {
	t.Helper()
	pipeline := preprocess.NewPipeline(preprocess.Options{
		DPI: 150, QualityThreshold: 0.01,
	})
	policy := retrier.Policy{MaxAttempts: 1, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	manager := engine.NewManager([]engine.Engine{eng})

	p, err := New(Config{Version: "test", Retry: policy}, pipeline, manager, cache.New(nil), nil)
	require.NoError(t, err)
	return p
}

func fullFields() *engine.Fields {
	return &engine.Fields{
		DocumentInfo: map[string]any{
			"document_type":  "建物登記第二類謄本（建物標示及所有權部）",
			"issuing_office": "大安地政事務所",
		},
		BuildingBasicInfo: map[string]any{
			"district":         "大安區",
			"section":          "大安段一小段",
			"building_number":  "大安建字第02069號",
			"address":          "敦化南路586號十三樓之1",
			"land_lot_number":  "大安段一小段 20 地號",
		},
		BuildingCharacteristics: map[string]any{
			"main_use":                     "住家用",
			"main_structure":               "鋼筋混凝土造",
			"total_floors":                 "018層",
			"construction_completion_date": "民國76年07月11日",
		},
		OwnershipInfo: engine.OwnershipList{{
			"owner":             "詹琬",
			"owner_id_number":   "A123456789",
			"owner_address":     "台北市松山區永吉路316號11樓",
			"ownership_share":   "全部",
			"registration_date": "民國76年09月08日",
			"cause_date":        "民國76年07月11日",
		}},
		RawText: "主建物：84.32平方公尺\n附屬建物：6.51平方公尺\n陽台：8.03平方公尺\n共有部分：24.11平方公尺\n合計：122.97平方公尺",
	}
}

func TestProcessEndToEnd(t *testing.T) {
	eng := &scriptedEngine{fields: fullFields()}
	p := newTestProcessor(t, eng)

	result, err := p.Process(context.Background(), &Request{
		Filename: "transcript.png",
		Data:     testPagePNG(t),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payload)
	assert.False(t, result.CacheHit)
	assert.Equal(t, "scripted", result.EngineName)

	record := result.Payload
	assert.Equal(t, "大安地政事務所", record.RegisterOffice)
	assert.Equal(t, "大安建字第02069號", record.Sections.Basic.BuildRegisterNumber)
	assert.Equal(t, []string{"大安段一小段20地號"}, record.Sections.Basic.LandRegisterNumbers)
	assert.Equal(t, "1987-09-08", record.Sections.Basic.RegistrationDate)

	require.Len(t, record.Sections.Ownerships, 1)
	owner := record.Sections.Ownerships[0]
	assert.Equal(t, "詹琬", owner.Holder.Name)
	assert.Equal(t, "A123***789", owner.Holder.IDNumberMasked)
	assert.Equal(t, "1/1", owner.ShareRatio)
	assert.Equal(t, "1987-07-11", owner.AcquisitionDate)

	profile := record.Sections.BuildingProfile
	assert.Equal(t, "鋼筋混凝土造", profile.Structure)
	assert.Equal(t, "住家用", profile.MainUse)
	assert.Equal(t, 18, profile.Floors.AboveGround)
	assert.Equal(t, "1987-07-11", profile.CompletionDate)

	area := record.Sections.AreaSummary
	assert.InDelta(t, 84.32, area.MainBuilding, 0.001)
	assert.InDelta(t, 6.51, area.AccessoryBuilding, 0.001)
	assert.InDelta(t, 8.03, area.Balcony, 0.001)
	assert.InDelta(t, 24.11, area.PublicFacilities, 0.001)
	assert.InDelta(t, 122.97, area.Total, 0.001)
	assert.InDelta(t, 37.2, area.ConvertedPing["total"], 0.05)

	assert.True(t, record.VerifyChecksum())
	assert.NoError(t, record.Validate())
}

func TestProcessCachesResult(t *testing.T) {
	eng := &scriptedEngine{fields: fullFields()}
	p := newTestProcessor(t, eng)
	ctx := context.Background()
	data := testPagePNG(t)

	first, err := p.Process(ctx, &Request{Filename: "a.png", Data: data})
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	callsAfterFirst := eng.calls

	second, err := p.Process(ctx, &Request{Filename: "a.png", Data: data})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, callsAfterFirst, eng.calls, "cache hit must not call any engine")
	assert.Equal(t, first.Payload.Metadata.DocumentID, second.Payload.Metadata.DocumentID)
}

func TestProcessGracefulFieldAbsence(t *testing.T) {
	eng := &scriptedEngine{fields: &engine.Fields{
		BuildingBasicInfo: map[string]any{"building_number": "松山建字第000000號"},
	}}
	p := newTestProcessor(t, eng)

	result, err := p.Process(context.Background(), &Request{Filename: "sparse.png", Data: testPagePNG(t)})
	require.NoError(t, err)

	record := result.Payload
	assert.Equal(t, "松山建字第000000號", record.Sections.Basic.BuildRegisterNumber)
	assert.Empty(t, record.Sections.Basic.LandRegisterNumbers)
	assert.Zero(t, record.Sections.AreaSummary.Total)
	assert.Empty(t, record.Sections.Ownerships)

	// Absent fields route to review instead of failing the document.
	fields := make([]string, 0, len(record.Sections.ConfidenceNotes))
	for _, note := range record.Sections.ConfidenceNotes {
		fields = append(fields, note.Field)
	}
	assert.Contains(t, fields, "sections.basic.land_register_numbers")
	assert.Contains(t, fields, "sections.ownerships")
	assert.NotContains(t, fields, "sections.basic.build_register_number")
}

func TestProcessRawTextOnlyEngine(t *testing.T) {
	eng := &scriptedEngine{fields: &engine.Fields{
		RawText: "大安段一小段 20 地號\n松山建字第000123號\n所有權人：王大明\n權利範圍：二分之一",
	}}
	p := newTestProcessor(t, eng)

	result, err := p.Process(context.Background(), &Request{Filename: "raw.png", Data: testPagePNG(t)})
	require.NoError(t, err)

	record := result.Payload
	assert.Equal(t, "松山建字第000123號", record.Sections.Basic.BuildRegisterNumber)
	assert.Equal(t, []string{"大安段一小段20地號"}, record.Sections.Basic.LandRegisterNumbers)
	require.Len(t, record.Sections.Ownerships, 1)
	assert.Equal(t, "王大明", record.Sections.Ownerships[0].Holder.Name)
	assert.Equal(t, "1/2", record.Sections.Ownerships[0].ShareRatio)
}

func TestProcessValidationErrors(t *testing.T) {
	p := newTestProcessor(t, &scriptedEngine{fields: fullFields()})
	ctx := context.Background()

	cases := []struct {
		name string
		req  *Request
	}{
		{"empty", &Request{Filename: "e.png", Data: nil}},
		{"unsupported format", &Request{Filename: "x.txt", Data: []byte("plain text, not a scan")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(ctx, tc.req)
			require.Error(t, err)
			var pErr *ocrerr.PipelineError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, ocrerr.ErrorValidation, pErr.Code)
			assert.Equal(t, tc.req.Filename, pErr.Details["filename"])
		})
	}
}

func TestProcessOversizedDocument(t *testing.T) {
	pipeline := preprocess.NewPipeline(preprocess.DefaultOptions())
	manager := engine.NewManager([]engine.Engine{&scriptedEngine{fields: fullFields()}})
	p, err := New(Config{MaxFileSize: 16}, pipeline, manager, nil, nil)
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &Request{Filename: "big.png", Data: testPagePNG(t)})
	require.Error(t, err)
	var pErr *ocrerr.PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ocrerr.ErrorValidation, pErr.Code)
	assert.EqualValues(t, 16, pErr.Details["max_bytes"])
}

func TestProcessRecognitionFailurePropagates(t *testing.T) {
	eng := &scriptedEngine{err: ocrerr.NewRecognitionError("provider down", nil, nil)}
	p := newTestProcessor(t, eng)

	_, err := p.Process(context.Background(), &Request{Filename: "f.png", Data: testPagePNG(t)})
	require.Error(t, err)
	var pErr *ocrerr.PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ocrerr.ErrorRecognition, pErr.Code)
}

// recoveringEngine fails its first call with a transient error, then
// answers normally.
type recoveringEngine struct {
	fields *engine.Fields
	calls  int
}

func (r *recoveringEngine) Name() string { return "recovering" }
func (r *recoveringEngine) Ready() bool  { return true }
func (r *recoveringEngine) Recognize(ctx context.Context, pagePNG []byte) (*engine.Fields, error) {
	r.calls++
	if r.calls == 1 {
		return nil, ocrerr.NewTimeoutError("upstream timeout", time.Second, nil)
	}
	return r.fields, nil
}

func TestProcessRetriesWholeRecognitionPass(t *testing.T) {
	eng := &recoveringEngine{fields: fullFields()}
	pipeline := preprocess.NewPipeline(preprocess.Options{DPI: 150, QualityThreshold: 0.01})
	manager := engine.NewManager([]engine.Engine{eng})
	policy := retrier.Policy{MaxAttempts: 2, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	p, err := New(Config{Version: "test", Retry: policy}, pipeline, manager, cache.New(nil), nil)
	require.NoError(t, err)

	result, err := p.Process(context.Background(), &Request{Filename: "t.png", Data: testPagePNG(t)})
	require.NoError(t, err)
	assert.Equal(t, 2, eng.calls, "transient failure retries the whole pass, not the adapter in place")
	assert.Equal(t, "recovering", result.EngineName)
}

func TestAssembleMinesEmbeddedDocumentText(t *testing.T) {
	p := newTestProcessor(t, &scriptedEngine{fields: fullFields()})

	recog := &engine.RecognitionResult{
		Fields:     &engine.Fields{DocumentInfo: map[string]any{"issuing_office": "松山地政事務所"}},
		EngineName: "scripted",
	}
	embedded := "大安段一小段 20 地號\n所有權人：王大明\n權利範圍：二分之一"

	record, err := p.assemble(&Request{Filename: "issued.pdf"}, nil, recog, embedded)
	require.NoError(t, err)

	assert.Equal(t, []string{"大安段一小段20地號"}, record.Sections.Basic.LandRegisterNumbers,
		"parsers must mine text embedded in the document")
	require.Len(t, record.Sections.Ownerships, 1)
	assert.Equal(t, "王大明", record.Sections.Ownerships[0].Holder.Name)
	assert.Equal(t, "1/2", record.Sections.Ownerships[0].ShareRatio)
}

func TestProcessAreaMismatchFlagsReview(t *testing.T) {
	fields := fullFields()
	fields.RawText = "主建物：84.32平方公尺\n附屬建物：6.51平方公尺\n合計：122.97平方公尺"
	p := newTestProcessor(t, &scriptedEngine{fields: fields})

	result, err := p.Process(context.Background(), &Request{Filename: "m.png", Data: testPagePNG(t)})
	require.NoError(t, err)

	flagged := false
	for _, note := range result.Payload.Sections.ConfidenceNotes {
		if note.Field == "sections.area_summary.total" {
			flagged = true
		}
	}
	assert.True(t, flagged, "stated total differing from part sum must be flagged")
}
