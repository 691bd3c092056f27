package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeValidPNG(t *testing.T) {
	data := pngBytes(t, 64, 48)

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Format != "png" {
		t.Errorf("expected format png, got %q", img.Format)
	}
	if img.Width != 64 || img.Height != 48 {
		t.Errorf("wrong dimensions: %dx%d", img.Width, img.Height)
	}
	if !bytes.Equal(img.Data, data) {
		t.Error("Decode must keep the original bytes")
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected empty input to fail decoding")
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := pngBytes(t, 8, 8)
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(img.Base64())
	if err != nil {
		t.Fatalf("Base64 output did not decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("base64 round trip lost data")
	}
}

func TestConvertToWebP(t *testing.T) {
	data := pngBytes(t, 32, 32)

	webpData, err := ConvertToWebP(data, 90)
	if err != nil {
		t.Fatalf("ConvertToWebP failed: %v", err)
	}
	if len(webpData) == 0 {
		t.Fatal("empty webp output")
	}
	// RIFF container magic
	if !bytes.HasPrefix(webpData, []byte("RIFF")) {
		t.Errorf("output does not look like webp: % x", webpData[:4])
	}
}

func TestConvertToWebPGarbage(t *testing.T) {
	_, err := ConvertToWebP([]byte("junk"), 90)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestEncodePNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if _, err := Decode(data); err != nil {
		t.Errorf("EncodePNG output did not decode: %v", err)
	}
}
