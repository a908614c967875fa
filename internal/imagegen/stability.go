package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/AnujSsStw/img-gen/internal/domain"
)

const (
	DefaultBaseURL = "https://api.stability.ai"
	GeneratePath   = "/v2beta/stable-image/generate/sd3"

	// Every request is an image-to-image pass at full strength with JPEG output.
	OutputFormat = "jpeg"
	Mode         = "image-to-image"
	Strength     = "1"

	maxErrorBody = 2 << 10
)

var ErrMissingAPIKey = errors.New("stability: API key is missing")

type StabilityOptions struct {
	BaseURL    string
	Keys       KeySource
	HTTPClient *http.Client
	// Timeout applies only when HTTPClient is nil. Zero leaves the
	// transport defaults in charge.
	Timeout time.Duration
}

// StabilityClient calls the Stability AI stable-image generate endpoint.
type StabilityClient struct {
	httpClient *http.Client
	baseURL    string
	keys       KeySource
}

func NewStabilityClient(opts StabilityOptions) *StabilityClient {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &StabilityClient{
		httpClient: client,
		baseURL:    base,
		keys:       opts.Keys,
	}
}

// UpstreamError describes a non-2xx answer from the generation API. It keeps
// the diagnostic detail for operators; handlers must not echo it to clients.
type UpstreamError struct {
	StatusCode int
	ID         string
	Name       string
	Errors     []string
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Name != "" || len(e.Errors) > 0 {
		return fmt.Sprintf("stability: http %d: %s: %s", e.StatusCode, e.Name, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("stability: http %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return domain.ErrUpstreamFailure }

// Generate sends one image-to-image request and returns the raw image bytes.
func (c *StabilityClient) Generate(ctx context.Context, req GenerateRequest) (*Image, error) {
	if c == nil {
		return nil, errors.New("stability client not configured")
	}
	if c.keys == nil {
		return nil, ErrMissingAPIKey
	}
	key, err := c.keys.StabilityAPIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("stability: resolve api key: %w", err)
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, body)
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stability: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newUpstreamError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}
	return &Image{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
}

func encodeForm(req GenerateRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	part, err := writer.CreatePart(imagePartHeader(req.Image))
	if err != nil {
		return nil, "", fmt.Errorf("stability: create image part: %w", err)
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, "", fmt.Errorf("stability: write image part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"prompt", req.Prompt},
		{"output_format", OutputFormat},
		{"mode", Mode},
		{"strength", Strength},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("stability: write %s: %w", f.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("stability: close form: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func imagePartHeader(img SourceImage) textproto.MIMEHeader {
	filename := strings.TrimSpace(img.Filename)
	if filename == "" {
		filename = "image"
	}
	contentType := strings.TrimSpace(img.MIMEType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(img.Data).String()
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}

func newUpstreamError(resp *http.Response) *UpstreamError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ue := &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
	var envelope struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		ue.ID = envelope.ID
		ue.Name = envelope.Name
		ue.Errors = envelope.Errors
	}
	return ue
}
