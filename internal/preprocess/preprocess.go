// Package preprocess turns a raw garment photo into the canonical
// transparent-background PNG: decode and normalize, crop away the face
// region if one is found, remove the background through an external
// segmentation provider, and force an alpha channel.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// MaxDimension is the maximum width or height fed into the models.
// Larger inputs are downscaled before face localization and segmentation.
const MaxDimension = 1024

// JPEGQuality is the compression quality for intermediate JPEG encoding.
const JPEGQuality = 85

// faceCropMargin is the extra fraction of image height cut below the
// face box, so collars and necklines near the chin don't keep identity
// context in frame.
const faceCropMargin = 0.03

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Segmenter isolates the foreground subject of an image, returning PNG
// bytes with a transparent background.
type Segmenter interface {
	RemoveBackground(ctx context.Context, img []byte) ([]byte, error)
}

// FaceLocator finds the most prominent face in an image. found is false
// when no face is present; an error means the provider itself failed.
type FaceLocator interface {
	LocateFace(ctx context.Context, img []byte) (box image.Rectangle, found bool, err error)
}

// ProcessingError is the single error kind surfaced for unrecoverable
// decode or segmentation failures. Callers get no partial output.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image processing failed (%s): %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Preprocessor produces transparent-background garment PNGs from raw
// photo bytes.
type Preprocessor struct {
	segmenter Segmenter
	faces     FaceLocator
}

// New creates a Preprocessor. faces may be nil to skip face cropping.
func New(segmenter Segmenter, faces FaceLocator) *Preprocessor {
	return &Preprocessor{segmenter: segmenter, faces: faces}
}

// Extract runs the full preprocessing chain on raw image bytes and
// returns a PNG with RGBA channels and a transparent background.
func (p *Preprocessor) Extract(ctx context.Context, raw []byte) ([]byte, error) {
	// Sniff actual MIME type from bytes (not trusting client headers).
	detected := http.DetectContentType(raw)
	if !AllowedMIME[detected] {
		return nil, &ProcessingError{Stage: "decode", Err: fmt.Errorf("unsupported image format: %s", detected)}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ProcessingError{Stage: "decode", Err: err}
	}

	img = downscale(img, MaxDimension)

	// Face crop is best-effort: a failing locator is logged, never fatal.
	img = p.cropBelowFace(ctx, img)

	pngIn, err := encodePNG(img)
	if err != nil {
		return nil, &ProcessingError{Stage: "encode", Err: err}
	}

	segmented, err := p.segmenter.RemoveBackground(ctx, pngIn)
	if err != nil {
		return nil, &ProcessingError{Stage: "segment", Err: err}
	}

	out, err := imaging.Decode(bytes.NewReader(segmented))
	if err != nil {
		return nil, &ProcessingError{Stage: "segment", Err: fmt.Errorf("decoding segmenter output: %w", err)}
	}

	// Clone always yields NRGBA, guaranteeing the alpha channel even if
	// the provider returned an opaque format.
	result, err := encodePNG(imaging.Clone(out))
	if err != nil {
		return nil, &ProcessingError{Stage: "encode", Err: err}
	}
	return result, nil
}

// cropBelowFace removes everything above the lower edge of the detected
// face box plus a safety margin. No face, or a locator failure, leaves
// the image untouched.
func (p *Preprocessor) cropBelowFace(ctx context.Context, img image.Image) image.Image {
	if p.faces == nil {
		return img
	}

	encoded, err := encodeJPEG(img)
	if err != nil {
		slog.Warn("face crop skipped, encoding failed", "error", err)
		return img
	}

	box, found, err := p.faces.LocateFace(ctx, encoded)
	if err != nil {
		slog.Warn("face localization failed, continuing without crop", "error", err)
		return img
	}
	if !found {
		return img
	}

	bounds := img.Bounds()
	h := bounds.Dy()
	cut := box.Max.Y + int(faceCropMargin*float64(h))
	if cut < 0 {
		cut = 0
	}
	if cut >= h {
		// Face box covers the frame; cropping would leave nothing.
		return img
	}

	return imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y+cut, bounds.Max.X, bounds.Max.Y))
}

// downscale resizes the image so neither dimension exceeds maxDim,
// preserving aspect ratio. Smaller images pass through untouched.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
