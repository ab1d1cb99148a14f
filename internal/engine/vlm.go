/**
 * Vision-language model adapters
 *
 * One adapter per provider API shape: OpenAI-compatible chat completions
 * (OpenAI, DeepSeek, xAI, DashScope), the Anthropic messages API and the
 * Google generateContent API. Each sends a single page image with the
 * transcript prompt and parses the JSON object out of the reply.
 */

package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/landreg/transcript-worker/internal/ocrerr"
)

// VLMSpec configures one vision model in the failover roster.
type VLMSpec struct {
	Provider      string `yaml:"provider" json:"provider"`
	Model         string `yaml:"model" json:"model"`
	CredentialEnv string `yaml:"credential_env" json:"credential_env"`
	BaseURL       string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Provider API shapes.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderGrok      = "grok"
	ProviderDashScope = "dashscope"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// defaultBaseURLs for providers whose spec omits one. OpenAI-compatible
// providers differ only in host.
var defaultBaseURLs = map[string]string{
	ProviderOpenAI:    "https://api.openai.com/v1",
	ProviderDeepSeek:  "https://api.deepseek.com",
	ProviderGrok:      "https://api.x.ai/v1",
	ProviderDashScope: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderAnthropic: "https://api.anthropic.com",
	ProviderGoogle:    "https://generativelanguage.googleapis.com",
}

// defaultCredentialEnvs for providers whose spec omits one.
var defaultCredentialEnvs = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderDeepSeek:  "DEEPSEEK_API_KEY",
	ProviderGrok:      "XAI_API_KEY",
	ProviderDashScope: "DASHSCOPE_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

// VLMEngine calls one hosted vision model.
type VLMEngine struct {
	spec   VLMSpec
	client *resty.Client
}

// NewVLMEngine builds the adapter for one roster entry. Unknown providers
// fail here rather than at request time.
func NewVLMEngine(spec VLMSpec, timeout time.Duration) (*VLMEngine, error) {
	if _, ok := defaultBaseURLs[spec.Provider]; !ok {
		return nil, fmt.Errorf("unsupported vision provider %q", spec.Provider)
	}
	if spec.BaseURL == "" {
		spec.BaseURL = defaultBaseURLs[spec.Provider]
	}
	if spec.CredentialEnv == "" {
		spec.CredentialEnv = defaultCredentialEnvs[spec.Provider]
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(spec.BaseURL).
		SetTimeout(timeout)
	return &VLMEngine{spec: spec, client: client}, nil
}

func (e *VLMEngine) Name() string {
	return e.spec.Provider + "-" + e.spec.Model
}

// Ready reports whether the credential is present; engines without one
// are skipped during failover instead of burning an attempt.
func (e *VLMEngine) Ready() bool {
	return e.apiKey() != ""
}

func (e *VLMEngine) apiKey() string {
	return os.Getenv(e.spec.CredentialEnv)
}

func (e *VLMEngine) Recognize(ctx context.Context, pagePNG []byte) (*Fields, error) {
	if !e.Ready() {
		return nil, ocrerr.NewRecognitionError("missing credential", nil,
			map[string]interface{}{"engine": e.Name(), "credential_env": e.spec.CredentialEnv})
	}

	encoded := base64.StdEncoding.EncodeToString(pagePNG)

	var content string
	var err error
	switch e.spec.Provider {
	case ProviderAnthropic:
		content, err = e.callAnthropic(ctx, encoded)
	case ProviderGoogle:
		content, err = e.callGoogle(ctx, encoded)
	default:
		content, err = e.callOpenAICompatible(ctx, encoded)
	}
	if err != nil {
		return nil, err
	}

	fields, err := DecodeFields(content)
	if err != nil {
		return nil, ocrerr.NewRecognitionError("model reply is not the expected JSON form", err,
			map[string]interface{}{"engine": e.Name()})
	}
	return fields, nil
}

// --- OpenAI-compatible chat completions ---

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatImagePart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *chatImgURL  `json:"image_url,omitempty"`
}

type chatImgURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *VLMEngine) callOpenAICompatible(ctx context.Context, encodedPNG string) (string, error) {
	body := chatRequest{
		Model: e.spec.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []chatImagePart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &chatImgURL{URL: "data:image/png;base64," + encodedPNG}},
			}},
		},
		ResponseFormat: &chatFormat{Type: "json_object"},
	}

	var out chatResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetAuthToken(e.apiKey()).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", ocrerr.NewProcessingError("calling "+e.Name(), err, nil)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", ocrerr.NewRecognitionError("upstream rejected request", nil,
			map[string]interface{}{"engine": e.Name(), "status": resp.StatusCode(), "message": msg})
	}
	if len(out.Choices) == 0 {
		return "", ocrerr.NewRecognitionError("upstream returned no choices", nil,
			map[string]interface{}{"engine": e.Name()})
	}
	return out.Choices[0].Message.Content, nil
}

// --- Anthropic messages ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content []anthropicPart `json:"content"`
}

type anthropicPart struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *VLMEngine) callAnthropic(ctx context.Context, encodedPNG string) (string, error) {
	body := anthropicRequest{
		Model:     e.spec.Model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicPart{
				{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: "image/png", Data: encodedPNG}},
				{Type: "text", Text: userPrompt},
			}},
		},
	}

	var out anthropicResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", e.apiKey()).
		SetHeader("anthropic-version", "2023-06-01").
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/v1/messages")
	if err != nil {
		return "", ocrerr.NewProcessingError("calling "+e.Name(), err, nil)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", ocrerr.NewRecognitionError("upstream rejected request", nil,
			map[string]interface{}{"engine": e.Name(), "status": resp.StatusCode(), "message": msg})
	}
	if len(out.Content) == 0 {
		return "", ocrerr.NewRecognitionError("upstream returned empty content", nil,
			map[string]interface{}{"engine": e.Name()})
	}
	return out.Content[0].Text, nil
}

// --- Google generateContent ---

type googleRequest struct {
	Contents         []googleContent `json:"contents"`
	GenerationConfig googleGenConfig `json:"generationConfig"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *googleInlineData `json:"inline_data,omitempty"`
}

type googleInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type googleGenConfig struct {
	ResponseMimeType string `json:"response_mime_type"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *VLMEngine) callGoogle(ctx context.Context, encodedPNG string) (string, error) {
	body := googleRequest{
		Contents: []googleContent{
			{Parts: []googlePart{
				{Text: systemPrompt + "\n\n" + userPrompt},
				{InlineData: &googleInlineData{MimeType: "image/png", Data: encodedPNG}},
			}},
		},
		GenerationConfig: googleGenConfig{ResponseMimeType: "application/json"},
	}

	var out googleResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", e.apiKey()).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/v1beta/models/" + e.spec.Model + ":generateContent")
	if err != nil {
		return "", ocrerr.NewProcessingError("calling "+e.Name(), err, nil)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", ocrerr.NewRecognitionError("upstream rejected request", nil,
			map[string]interface{}{"engine": e.Name(), "status": resp.StatusCode(), "message": msg})
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ocrerr.NewRecognitionError("upstream returned no candidates", nil,
			map[string]interface{}{"engine": e.Name()})
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
