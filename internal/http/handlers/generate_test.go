package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AnujSsStw/img-gen/internal/imagegen"
	"github.com/AnujSsStw/img-gen/internal/infra"
	"github.com/AnujSsStw/img-gen/internal/metrics"
	"github.com/AnujSsStw/img-gen/pkg/dataurl"
)

var (
	sourcePNG    = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	generatedJPG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0xff, 0xd9}
)

type stubGenerator struct {
	mu    sync.Mutex
	img   *imagegen.Image
	err   error
	panic any
	calls []imagegen.GenerateRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req imagegen.GenerateRequest) (*imagegen.Image, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.panic != nil {
		panic(s.panic)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.img, nil
}

type uploadPart struct {
	prompt    *string
	image     []byte
	imageName string
	query     string
}

func strPtr(s string) *string { return &s }

func newUploadRequest(t *testing.T, p uploadPart) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if p.image != nil {
		h := make(textproto.MIMEHeader)
		name := p.imageName
		if name == "" {
			name = "source.png"
		}
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create image part: %v", err)
		}
		_, _ = part.Write(p.image)
	}
	if p.prompt != nil {
		if err := w.WriteField("prompt", *p.prompt); err != nil {
			t.Fatalf("write prompt: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	target := GeneratePath
	if p.query != "" {
		target += "?" + p.query
	}
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newTestApp(gen imagegen.Generator) *App {
	return NewApp(&infra.Config{MaxUploadMemory: 1 << 20}, zerolog.Nop(), gen, metrics.NewRecorder(), nil)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestGenerateImageSuccess(t *testing.T) {
	gen := &stubGenerator{img: &imagegen.Image{Data: generatedJPG, MIMEType: "image/jpeg"}}
	app := newTestApp(gen)

	rr := httptest.NewRecorder()
	app.GenerateImage(rr, newUploadRequest(t, uploadPart{prompt: strPtr("turn it into a painting"), image: sourcePNG}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	body := decodeBody(t, rr)
	if !strings.HasPrefix(body["url"], "data:image/jpeg;base64,") {
		t.Fatalf("url = %q", body["url"])
	}
	mime, data, err := dataurl.Decode(body["url"])
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if mime != "image/jpeg" || !bytes.Equal(data, generatedJPG) {
		t.Fatalf("data url payload mismatch: mime=%s data=%x", mime, data)
	}

	if len(gen.calls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(gen.calls))
	}
	call := gen.calls[0]
	if call.Prompt != "turn it into a painting" {
		t.Fatalf("prompt forwarded as %q", call.Prompt)
	}
	if !bytes.Equal(call.Image.Data, sourcePNG) || call.Image.Filename != "source.png" || call.Image.MIMEType != "image/png" {
		t.Fatalf("image forwarded as %+v", call.Image)
	}
}

func TestGenerateImageMissingInput(t *testing.T) {
	tests := []struct {
		name string
		part uploadPart
	}{
		{name: "missing prompt", part: uploadPart{image: sourcePNG}},
		{name: "empty prompt", part: uploadPart{prompt: strPtr(""), image: sourcePNG}},
		{name: "missing image", part: uploadPart{prompt: strPtr("a prompt")}},
		{name: "missing both", part: uploadPart{}},
		{name: "prompt only in query", part: uploadPart{image: sourcePNG, query: "prompt=from-query"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{img: &imagegen.Image{Data: generatedJPG}}
			app := newTestApp(gen)

			rr := httptest.NewRecorder()
			app.GenerateImage(rr, newUploadRequest(t, tc.part))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Missing prompt or image"}` {
				t.Fatalf("body = %s", got)
			}
			if len(gen.calls) != 0 {
				t.Fatalf("generator must not be called")
			}
		})
	}
}

func TestGenerateImageFailuresAreOpaque(t *testing.T) {
	tests := []struct {
		name   string
		gen    *stubGenerator
		secret string
	}{
		{
			name: "upstream 402",
			gen: &stubGenerator{err: &imagegen.UpstreamError{
				StatusCode: http.StatusPaymentRequired,
				Name:       "payment_required",
				Errors:     []string{"lack sufficient credits"},
				Body:       `{"name":"payment_required","errors":["lack sufficient credits"]}`,
			}},
			secret: "credits",
		},
		{
			name:   "upstream 500 plain body",
			gen:    &stubGenerator{err: &imagegen.UpstreamError{StatusCode: http.StatusInternalServerError, Body: "stack trace at node 7"}},
			secret: "node 7",
		},
		{
			name:   "transport error",
			gen:    &stubGenerator{err: errors.New("dial tcp 10.0.0.1:443: connection refused")},
			secret: "10.0.0.1",
		},
		{
			name:   "missing api key",
			gen:    &stubGenerator{err: imagegen.ErrMissingAPIKey},
			secret: "API key",
		},
		{
			name:   "panic",
			gen:    &stubGenerator{panic: "nil map write in encoder"},
			secret: "nil map",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(tc.gen)

			rr := httptest.NewRecorder()
			app.GenerateImage(rr, newUploadRequest(t, uploadPart{prompt: strPtr("p"), image: sourcePNG}))

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rr.Code)
			}
			body := decodeBody(t, rr)
			if body["error"] != MsgGenerationFailed || len(body) != 1 {
				t.Fatalf("body = %v", body)
			}
			if strings.Contains(rr.Body.String(), tc.secret) {
				t.Fatalf("upstream detail leaked: %s", rr.Body.String())
			}
		})
	}
}

func TestGenerateImageMalformedForm(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "json body", contentType: "application/json", body: `{"prompt":"p"}`},
		{name: "no content type", body: "garbage"},
		{name: "boundary missing", contentType: "multipart/form-data", body: "--x\r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{img: &imagegen.Image{Data: generatedJPG}}
			app := newTestApp(gen)

			req := httptest.NewRequest(http.MethodPost, GeneratePath, strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rr := httptest.NewRecorder()
			app.GenerateImage(rr, req)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != MsgGenerationFailed {
				t.Fatalf("error = %q", got)
			}
			if len(gen.calls) != 0 {
				t.Fatalf("generator must not be called")
			}
		})
	}
}

func TestGenerateImageWithoutGenerator(t *testing.T) {
	app := newTestApp(nil)
	rr := httptest.NewRecorder()
	app.GenerateImage(rr, newUploadRequest(t, uploadPart{prompt: strPtr("p"), image: sourcePNG}))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

// The handler and the real Stability client together against a fake upstream.
func TestGenerateImageEndToEnd(t *testing.T) {
	var (
		mu       sync.Mutex
		captured map[string]string
		gotImage []byte
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" || r.Header.Get("Accept") != "image/*" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		mu.Lock()
		gotImage = data
		captured = map[string]string{}
		for _, field := range []string{"prompt", "output_format", "mode", "strength"} {
			captured[field] = r.FormValue(field)
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(generatedJPG)
	}))
	defer upstream.Close()

	keys := staticKeys("sk-test")
	client := imagegen.NewStabilityClient(imagegen.StabilityOptions{BaseURL: upstream.URL, Keys: keys})
	app := newTestApp(client)

	rr := httptest.NewRecorder()
	app.GenerateImage(rr, newUploadRequest(t, uploadPart{prompt: strPtr("  keep my spacing  "), image: sourcePNG}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body=%s", rr.Code, rr.Body.String())
	}
	_, data, err := dataurl.Decode(decodeBody(t, rr)["url"])
	if err != nil || !bytes.Equal(data, generatedJPG) {
		t.Fatalf("data url mismatch: %x (%v)", data, err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]string{
		"prompt":        "  keep my spacing  ",
		"output_format": "jpeg",
		"mode":          "image-to-image",
		"strength":      "1",
	}
	for field, value := range want {
		if captured[field] != value {
			t.Fatalf("outbound %s = %q, want %q", field, captured[field], value)
		}
	}
	if !bytes.Equal(gotImage, sourcePNG) {
		t.Fatalf("outbound image bytes changed: %x", gotImage)
	}
}

type staticKeys string

func (k staticKeys) StabilityAPIKey(context.Context) (string, error) { return string(k), nil }
