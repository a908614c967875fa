// Package client is a Go rendition of the upload form: it holds the same
// state as the browser page and talks to the proxy endpoint the same way.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// DefaultEndpoint must equal handlers.GeneratePath; the router tests
	// check the two together.
	DefaultEndpoint = "/api/generate-image"

	MsgMissingFile = "Please select an image file"
	MsgFailed      = "An error occurred while generating the image"
)

var (
	ErrNoFile = errors.New("client: no image file selected")
	ErrBusy   = errors.New("client: submission already in progress")
)

// File is the image selected by the user.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// State is a snapshot of the form.
type State struct {
	HasFile   bool
	Prompt    string
	Loading   bool
	Error     string
	ResultURL string
}

type Options struct {
	BaseURL    string
	Endpoint   string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Form is safe for concurrent use; Submit may run while other goroutines
// read State.
type Form struct {
	httpClient *http.Client
	url        string
	logger     zerolog.Logger

	mu      sync.RWMutex
	file    *File
	prompt  string
	loading bool
	err     string
	result  string
}

func NewForm(opts Options) *Form {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Form{
		httpClient: client,
		url:        strings.TrimRight(opts.BaseURL, "/") + endpoint,
		logger:     opts.Logger,
	}
}

// SetFile selects the image; nil clears the selection.
func (f *Form) SetFile(file *File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file == nil {
		f.file = nil
		return
	}
	cp := *file
	f.file = &cp
}

func (f *Form) SetPrompt(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = prompt
}

func (f *Form) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return State{
		HasFile:   f.file != nil,
		Prompt:    f.prompt,
		Loading:   f.loading,
		Error:     f.err,
		ResultURL: f.result,
	}
}

// CanSubmit mirrors the enabled state of the submit button.
func (f *Form) CanSubmit() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.file != nil && !f.loading
}

// Submit posts the selected file and prompt. Without a file it records
// MsgMissingFile and sends nothing. Loading is cleared on every return path.
// A failed submission keeps the previous result.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.file == nil {
		f.err = MsgMissingFile
		f.mu.Unlock()
		return ErrNoFile
	}
	if f.loading {
		f.mu.Unlock()
		return ErrBusy
	}
	file := *f.file
	prompt := f.prompt
	f.loading = true
	f.err = ""
	f.mu.Unlock()

	url, err := f.send(ctx, file, prompt)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	if err != nil {
		f.logger.Error().Err(err).Msg("generate image request failed")
		f.err = MsgFailed
		return err
	}
	f.result = url
	return nil
}

func (f *Form) send(ctx context.Context, file File, prompt string) (string, error) {
	body, contentType, err := encodeUpload(file, prompt)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("response missing url")
	}
	return out.URL, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeUpload(file File, prompt string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	name := file.Name
	if name == "" {
		name = "blob"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(name)))
	if file.ContentType != "" {
		h.Set("Content-Type", file.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}
