/**
 * Engine failover manager
 *
 * Tries the roster in order until one engine produces usable fields.
 * Engines without credentials are skipped, and every failed attempt is
 * carried into the final error so operators can see which provider
 * failed and why. Each engine gets exactly one attempt per recognize
 * call; retrying a whole recognition pass belongs to the caller.
 */

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/landreg/transcript-worker/internal/logging"
	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// Manager holds the ordered engine roster.
type Manager struct {
	engines []Engine
	logger  *logging.Logger
}

// NewManager builds a failover manager over the given roster, in order.
func NewManager(engines []Engine) *Manager {
	return &Manager{
		engines: engines,
		logger:  logging.NewLogger("engine"),
	}
}

// Engines returns the roster names in failover order.
func (m *Manager) Engines() []string {
	names := make([]string, len(m.engines))
	for i, e := range m.engines {
		names[i] = e.Name()
	}
	return names
}

// RecognizePage runs the failover chain on one page image. The first
// engine returning non-empty fields wins; an engine that succeeds with
// empty output counts as a failure and the chain moves on.
func (m *Manager) RecognizePage(ctx context.Context, pagePNG []byte) (*Fields, string, []EngineFailure, error) {
	var failures []EngineFailure
	var lastErr error

	for _, eng := range m.engines {
		if !eng.Ready() {
			m.logger.Debug("Skipping engine without credential", "engine", eng.Name())
			continue
		}

		m.logger.Info("Attempting recognition", "engine", eng.Name())
		fields, err := eng.Recognize(ctx, pagePNG)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", failures, ctx.Err()
			}
			m.logger.Warn("Engine failed", "engine", eng.Name(), "error", err)
			failures = append(failures, EngineFailure{Engine: eng.Name(), Reason: err.Error()})
			lastErr = err
			continue
		}
		if fields.Empty() {
			m.logger.Warn("Engine returned empty result", "engine", eng.Name())
			failures = append(failures, EngineFailure{Engine: eng.Name(), Reason: "empty result"})
			continue
		}

		m.logger.Info("Recognition succeeded", "engine", eng.Name())
		return fields, eng.Name(), failures, nil
	}

	details := map[string]interface{}{"attempted": len(failures)}
	var reasons []string
	for _, f := range failures {
		reasons = append(reasons, f.Engine+": "+f.Reason)
	}
	if len(reasons) > 0 {
		details["errors"] = strings.Join(reasons, "; ")
	}
	// The last engine error rides along as the cause so transient
	// failures keep their classification through the aggregate.
	return nil, "", failures, ocrerr.NewRecognitionError("all recognition engines failed", lastErr, details)
}

// RecognizeDocument recognizes every page and merges the per-page fields
// into one document-level result. All pages must go through the same
// winning engine path; per-page failover is still allowed so one flaky
// provider call does not fail a multi-page document.
func (m *Manager) RecognizeDocument(ctx context.Context, pagePNGs [][]byte) (*RecognitionResult, error) {
	if len(pagePNGs) == 0 {
		return nil, ocrerr.NewValidationError("no pages to recognize", nil)
	}

	pages := make([]*Fields, 0, len(pagePNGs))
	var allFailures []EngineFailure
	engineNames := map[string]bool{}
	var firstEngine string

	for i, png := range pagePNGs {
		fields, engineName, failures, err := m.RecognizePage(ctx, png)
		allFailures = append(allFailures, failures...)
		if err != nil {
			// Context expiry is not a recognition failure; it keeps its
			// own classification so the caller reports a timeout.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, ocrerr.NewRecognitionError(
				fmt.Sprintf("recognition failed on page %d of %d", i+1, len(pagePNGs)), err,
				map[string]interface{}{"page": i + 1})
		}
		if firstEngine == "" {
			firstEngine = engineName
		}
		engineNames[engineName] = true
		pages = append(pages, fields)
	}

	merged, conflicts := MergePages(pages)

	result := &RecognitionResult{
		Fields:      merged,
		EngineName:  firstEngine,
		ProcessedAt: time.Now().UTC(),
		Failures:    allFailures,
		Conflicts:   conflicts,
	}
	if len(engineNames) > 1 {
		result.Conflicts = append(result.Conflicts,
			fmt.Sprintf("pages recognized by %d different engines", len(engineNames)))
	}
	return result, nil
}

// DecodeFields parses an engine reply into Fields. Models sometimes wrap
// the JSON object in prose or a code fence; the first balanced object in
// the reply is what gets decoded.
func DecodeFields(content string) (*Fields, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding structured reply: %w", err)
	}
	return &fields, nil
}

// extractJSONObject returns the first balanced top-level JSON object in
// the text, tracking string and escape state so braces inside values do
// not break the balance count.
func extractJSONObject(content string) ([]byte, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(content[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in reply")
}
