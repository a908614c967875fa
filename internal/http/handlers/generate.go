package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/AnujSsStw/img-gen/internal/domain"
	"github.com/AnujSsStw/img-gen/internal/imagegen"
	"github.com/AnujSsStw/img-gen/internal/middleware"
	"github.com/AnujSsStw/img-gen/pkg/dataurl"
)

const (
	GeneratePath = "/api/generate-image"

	MsgMissingInput     = "Missing prompt or image"
	MsgGenerationFailed = "An error occurred while generating the image"

	// The upstream request always asks for output_format=jpeg.
	resultMIME = "image/jpeg"

	defaultMaxUploadMemory = 32 << 20
)

type generateResponse struct {
	URL string `json:"url"`
}

// GenerateImage proxies one multipart upload to the generation API and
// answers with the result as a data URL. Only two error messages ever reach
// the caller: MsgMissingInput with 400 and MsgGenerationFailed with 500.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	lc := domain.NewLifecycle(a.clock())
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("generate image panicked")
			if !lc.Terminal() {
				_ = lc.Fail(domain.FailureInternal, fmt.Errorf("panic: %v", rec), a.clock())
			}
			a.error(w, http.StatusInternalServerError, MsgGenerationFailed)
		}
		a.finish(log, lc)
	}()

	req, err := a.readUpload(r)
	if err != nil {
		if errors.Is(err, domain.ErrMissingInput) {
			_ = lc.Fail(domain.FailureValidation, err, a.clock())
			a.error(w, http.StatusBadRequest, MsgMissingInput)
			return
		}
		a.internalError(w, log, lc, fmt.Errorf("read upload: %w", err))
		return
	}
	if err := lc.Advance(domain.StateValidated, a.clock()); err != nil {
		a.internalError(w, log, lc, err)
		return
	}

	if a.Generator == nil {
		a.internalError(w, log, lc, errors.New("image generator not configured"))
		return
	}
	if err := lc.Advance(domain.StateForwarding, a.clock()); err != nil {
		a.internalError(w, log, lc, err)
		return
	}
	log.Debug().
		Int("image_bytes", len(req.Image.Data)).
		Str("image_type", req.Image.MIMEType).
		Msg("forwarding to upstream")

	img, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		var upstream *imagegen.UpstreamError
		if errors.As(err, &upstream) {
			log.Error().
				Int("upstream_status", upstream.StatusCode).
				Str("upstream_id", upstream.ID).
				Str("upstream_name", upstream.Name).
				Strs("upstream_errors", upstream.Errors).
				Str("upstream_body", upstream.Body).
				Msg("upstream API error")
			_ = lc.Fail(domain.FailureUpstream, err, a.clock())
			a.error(w, http.StatusInternalServerError, MsgGenerationFailed)
			return
		}
		a.internalError(w, log, lc, fmt.Errorf("generate image: %w", err))
		return
	}

	if err := lc.Advance(domain.StateCompleted, a.clock()); err != nil {
		a.internalError(w, log, lc, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{URL: dataurl.Encode(resultMIME, img.Data)})
}

// readUpload parses the inbound form. It returns domain.ErrMissingInput when
// the prompt is empty or no image file was sent; any other error means the
// body could not be read as a multipart form.
func (a *App) readUpload(r *http.Request) (imagegen.GenerateRequest, error) {
	var req imagegen.GenerateRequest
	if err := r.ParseMultipartForm(a.maxUploadMemory()); err != nil {
		return req, fmt.Errorf("parse multipart form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	// Only the multipart body counts; query parameters are ignored.
	prompt := r.PostFormValue("prompt")
	file, header, err := r.FormFile("image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return req, fmt.Errorf("open image part: %w", err)
	}
	if file != nil {
		defer file.Close()
	}
	if prompt == "" || file == nil {
		return req, domain.ErrMissingInput
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return req, fmt.Errorf("read image part: %w", err)
	}
	req.Prompt = prompt
	req.Image = imagegen.SourceImage{
		Data:     data,
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
	}
	return req, nil
}

func (a *App) internalError(w http.ResponseWriter, log zerolog.Logger, lc *domain.Lifecycle, err error) {
	log.Error().Err(err).Str("state", string(lc.State())).Msg("generate image failed")
	if !lc.Terminal() {
		_ = lc.Fail(domain.FailureInternal, err, a.clock())
	}
	a.error(w, http.StatusInternalServerError, MsgGenerationFailed)
}

func (a *App) finish(log zerolog.Logger, lc *domain.Lifecycle) {
	now := a.clock()
	a.Metrics.ObserveGeneration(lc, now)
	log.Debug().
		Str("state", string(lc.State())).
		Str("failure", string(lc.Kind())).
		Dur("elapsed", lc.Elapsed(now)).
		Msg("generate image finished")
}

func (a *App) maxUploadMemory() int64 {
	if a.Config != nil && a.Config.MaxUploadMemory > 0 {
		return a.Config.MaxUploadMemory
	}
	return defaultMaxUploadMemory
}
