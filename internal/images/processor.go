package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	_ "image/jpeg"
	"image/png"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// DecodeError indicates the engine handed back bytes that are not a
// well-formed image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed image output: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Image is one decoded generation artifact.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode validates that the bytes are a well-formed image and captures its
// format and dimensions without a full pixel decode.
func Decode(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &Image{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Base64 returns the image bytes encoded for inline transport.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ConvertToWebP re-encodes any supported image as lossy webp at the given
// quality (1-100). Used before storage uploads to cut payload size.
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("webp encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG renders a decoded image back to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
