package imagegen

import "context"

// SourceImage is the uploaded image used as conditioning input.
type SourceImage struct {
	Data     []byte
	Filename string
	MIMEType string
}

// GenerateRequest carries the caller supplied inputs. The fixed upstream
// parameters are not part of it.
type GenerateRequest struct {
	Prompt string
	Image  SourceImage
}

// Image is the binary result returned by the upstream service.
type Image struct {
	Data     []byte
	MIMEType string
}

// Generator is implemented by upstream image generation clients.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Image, error)
}

// KeySource supplies the bearer credential for each upstream call.
type KeySource interface {
	StabilityAPIKey(ctx context.Context) (string, error)
}
