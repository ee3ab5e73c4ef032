// Package gemini adapts the Gemini API to generator.TextModel and sorts its
// errors into retryable and fatal kinds.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/roach88/promptmill/internal/failure"
	"github.com/roach88/promptmill/internal/generator"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Config selects the Vertex AI project and model.
type Config struct {
	Project  string
	Location string
	Model    string
}

// contentGenerator is the slice of *genai.Models the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Model implements generator.TextModel on top of genai.
type Model struct {
	models contentGenerator
	model  string
}

var _ generator.TextModel = (*Model)(nil)

// New connects to Gemini on the Vertex AI backend. Credentials come from the
// environment (application default credentials).
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Project == "" {
		return nil, errors.New("gemini: project is required")
	}
	if cfg.Location == "" {
		return nil, errors.New("gemini: location is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newModel(client.Models, cfg.Model), nil
}

func newModel(models contentGenerator, model string) *Model {
	if model == "" {
		model = DefaultModel
	}
	return &Model{models: models, model: model}
}

// Name returns the model identifier sent with each request.
func (m *Model) Name() string {
	return m.model
}

// Generate sends one request and returns the response text.
func (m *Model) Generate(ctx context.Context, req generator.Request) (string, error) {
	const op = "gemini"

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := m.models.GenerateContent(ctx, m.model, genai.Text(req.User), cfg)
	if err != nil {
		return "", classify(op, err)
	}

	text := resp.Text()
	if text == "" {
		return "", failure.New(failure.KindEmptyResult, op, "no text in response (finish_reason="+finishReason(resp)+")")
	}
	return text, nil
}

// classify tags err as transient when the service signals rate limiting or a
// temporary outage. Everything else is fatal.
func classify(op string, err error) error {
	code, status, ok := apiStatus(err)
	if ok && isTransient(code, status) {
		return failure.Wrap(failure.KindTransientService, op, fmt.Sprintf("%d %s", code, status), err)
	}
	if ok {
		return failure.Wrap(failure.KindFatalService, op, fmt.Sprintf("%d %s", code, status), err)
	}
	return failure.Wrap(failure.KindFatalService, op, "request failed", err)
}

func isTransient(code int, status string) bool {
	switch {
	case code == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return true
	case code == http.StatusServiceUnavailable, status == "UNAVAILABLE":
		return true
	}
	return false
}

func apiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "unknown"
	}
	if r := resp.Candidates[0].FinishReason; r != "" {
		return string(r)
	}
	return "unknown"
}
