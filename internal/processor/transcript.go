/**
 * Transcript processing pipeline
 *
 * Orchestrates one document end to end: validation, cache lookup, page
 * rendering and preprocessing, engine failover recognition, field
 * extraction and record assembly, then cache store. Cache failures
 * degrade to recomputation; they never fail a document.
 */

package processor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landreg/transcript-worker/internal/cache"
	"github.com/landreg/transcript-worker/internal/engine"
	"github.com/landreg/transcript-worker/internal/ocrerr"
	"github.com/landreg/transcript-worker/internal/payload"
	"github.com/landreg/transcript-worker/internal/preprocess"
	"github.com/landreg/transcript-worker/internal/retrier"
	"github.com/landreg/transcript-worker/internal/source"
)

// Config holds processor configuration.
type Config struct {
	// MaxFileSize bounds accepted uploads in bytes.
	MaxFileSize int64

	// Language is the recognition language tag used in cache keys.
	Language string

	// DocumentType is the cache key document class.
	DocumentType string

	// ProcessedBy identifies this worker in the audit block.
	ProcessedBy string

	// Version is the recognizer version stamped into metadata.
	Version string

	// Retry bounds in-process retries of a whole recognition pass after a
	// transient failure. Within one pass every engine is attempted once;
	// a zero value means the default policy.
	Retry retrier.Policy
}

// Request is one document to process.
type Request struct {
	RequestID  string
	Filename   string
	Data       []byte
	PropertyID string
}

// Result is the processing outcome.
type Result struct {
	Payload    *payload.TranscriptPayload
	CacheHit   bool
	EngineName string
	Pages      int
	Duration   time.Duration
}

// TranscriptProcessor runs the pipeline.
type TranscriptProcessor struct {
	cfg      Config
	pipeline *preprocess.Pipeline
	engines  *engine.Manager
	cache    *cache.ResultCache
	renderer source.PageRenderer
}

// New builds the processor. The renderer may be nil; PDF documents then
// fail with a clear error while single-image uploads keep working.
func New(cfg Config, pipeline *preprocess.Pipeline, engines *engine.Manager, resultCache *cache.ResultCache, renderer source.PageRenderer) (*TranscriptProcessor, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("preprocess pipeline is required")
	}
	if engines == nil {
		return nil, fmt.Errorf("engine manager is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 << 20
	}
	if cfg.Language == "" {
		cfg.Language = "zh-TW"
	}
	if cfg.DocumentType == "" {
		cfg.DocumentType = "transcript"
	}
	if cfg.ProcessedBy == "" {
		cfg.ProcessedBy = "transcript-worker"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retrier.DefaultPolicy()
	}
	return &TranscriptProcessor{
		cfg:      cfg,
		pipeline: pipeline,
		engines:  engines,
		cache:    resultCache,
		renderer: renderer,
	}, nil
}

// Process runs one document through the full pipeline.
func (p *TranscriptProcessor) Process(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log.Printf("[Req %s] Starting transcript pipeline (%s, %d bytes)", req.RequestID, req.Filename, len(req.Data))

	// Step 1: Validate the upload.
	log.Printf("[Req %s] Step 1: Validating input", req.RequestID)
	if err := p.validate(req); err != nil {
		return nil, err
	}

	// Step 2: Cache lookup. A cache error is indistinguishable from a miss.
	key := ""
	if p.cache != nil {
		key = cache.GenerateKey(p.cfg.DocumentType, p.cfg.Language, req.Data, p.pipeline.Options().Fingerprint())
		log.Printf("[Req %s] Step 2: Cache lookup", req.RequestID)
		if raw, ok := p.cache.Get(ctx, key); ok {
			if cached, err := payload.Unmarshal(raw); err == nil && cached.VerifyChecksum() {
				log.Printf("[Req %s] Cache hit, returning stored record", req.RequestID)
				return &Result{
					Payload:    cached,
					CacheHit:   true,
					EngineName: cached.Metadata.OCREngine.Name,
					Duration:   time.Since(start),
				}, nil
			}
			log.Printf("[Req %s] Cached record failed verification, recomputing", req.RequestID)
			p.cache.Invalidate(ctx, key)
		}
	}

	// Step 3: Open the source document.
	log.Printf("[Req %s] Step 3: Opening source (%s)", req.RequestID, source.DetectFormat(req.Data))
	doc, err := source.FromBytes(req.Filename, req.Data, p.renderer)
	if err != nil {
		return nil, ocrerr.NewValidationError("unreadable source document",
			map[string]interface{}{"filename": req.Filename, "cause": err.Error()})
	}

	// Step 4: Render and preprocess every page.
	log.Printf("[Req %s] Step 4: Preprocessing %d page(s)", req.RequestID, doc.PageCount())
	pages, err := p.pipeline.ProcessDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	// Step 5: Recognition with engine failover. Each engine gets one
	// attempt per pass; transient failures retry the whole pass.
	log.Printf("[Req %s] Step 5: Recognizing pages (roster: %v)", req.RequestID, p.engines.Engines())
	pngs := make([][]byte, len(pages))
	for i, page := range pages {
		pngs[i] = page.PNG
	}
	var recog *engine.RecognitionResult
	err = retrier.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
		var recErr error
		recog, recErr = p.engines.RecognizeDocument(ctx, pngs)
		return recErr
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Req %s] Recognition complete: engine=%s failures=%d", req.RequestID, recog.EngineName, len(recog.Failures))

	// Step 6: Field extraction and record assembly. Text embedded in the
	// PDF content stream, when present, feeds the pattern parsers too.
	log.Printf("[Req %s] Step 6: Assembling record", req.RequestID)
	record, err := p.assemble(req, pages, recog, embeddedText(doc))
	if err != nil {
		return nil, err
	}

	// Step 7: Schema validation and checksum seal.
	log.Printf("[Req %s] Step 7: Validating record", req.RequestID)
	if err := record.Seal(); err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	// Step 8: Cache store.
	if p.cache != nil && key != "" {
		if raw, err := record.Marshal(); err == nil {
			p.cache.Set(ctx, key, raw)
		}
	}

	log.Printf("[Req %s] Pipeline complete: engine=%s pages=%d notes=%d duration=%s",
		req.RequestID, recog.EngineName, len(pages), len(record.Sections.ConfidenceNotes), time.Since(start).Round(time.Millisecond))

	return &Result{
		Payload:    record,
		EngineName: recog.EngineName,
		Pages:      len(pages),
		Duration:   time.Since(start),
	}, nil
}

// embeddedText salvages text embedded in a PDF's content stream. Scanned
// transcripts usually carry none, but electronically issued ones do, and
// that text is exact where recognition is probabilistic.
func embeddedText(doc source.Document) string {
	pdfDoc, ok := doc.(*source.PDFDocument)
	if !ok {
		return ""
	}
	var blocks []string
	for i := 0; i < pdfDoc.PageCount(); i++ {
		text, err := pdfDoc.EmbeddedPageText(i)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n")
}

func (p *TranscriptProcessor) validate(req *Request) error {
	if len(req.Data) == 0 {
		return ocrerr.NewValidationError("empty document",
			map[string]interface{}{"filename": req.Filename})
	}
	if int64(len(req.Data)) > p.cfg.MaxFileSize {
		return ocrerr.NewValidationError("document exceeds size limit",
			map[string]interface{}{
				"filename":  req.Filename,
				"size":      len(req.Data),
				"max_bytes": p.cfg.MaxFileSize,
			})
	}
	if source.DetectFormat(req.Data) == source.FormatUnknown {
		return ocrerr.NewValidationError("unsupported document format",
			map[string]interface{}{"filename": req.Filename})
	}
	return nil
}
