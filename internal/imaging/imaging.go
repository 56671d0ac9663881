// Package imaging checks uploaded images and shrinks the oversized ones.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeWebP = "image/webp"
)

var (
	// ErrUnsupportedType is returned for anything that does not sniff as
	// one of the accepted image formats.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrCorruptImage is returned when the header sniffs as an image but the
	// dimensions cannot be read.
	ErrCorruptImage = errors.New("corrupt image")

	// ErrTooLarge is returned when the declared dimensions exceed MaxPixels.
	ErrTooLarge = errors.New("image dimensions too large")
)

// MaxPixels caps width*height. Decoding allocates by declared size, not by
// upload size, so a small compressed file can still ask for gigabytes.
const MaxPixels = 40_000_000

// jpegQuality is used when re-encoding a downscaled JPEG.
const jpegQuality = 85

//nolint:gochecknoglobals
var (
	extensions = map[string]string{
		MIMETypeJPEG: ".jpg",
		MIMETypePNG:  ".png",
		MIMETypeGIF:  ".gif",
		MIMETypeWebP: ".webp",
	}

	configDecoders = map[string]func(io.Reader) (image.Config, error){
		MIMETypeJPEG: jpeg.DecodeConfig,
		MIMETypePNG:  png.DecodeConfig,
		MIMETypeGIF:  gif.DecodeConfig,
		MIMETypeWebP: webp.DecodeConfig,
	}

	// Only these are re-encoded. GIF would lose its animation and the
	// standard library has no WebP encoder.
	resizable = map[string]struct {
		decode func(io.Reader) (image.Image, error)
		encode func(io.Writer, image.Image) error
	}{
		MIMETypeJPEG: {jpeg.Decode, func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: jpegQuality})
		}},
		MIMETypePNG: {png.Decode, png.Encode},
	}
)

// Image is a validated upload.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Ext returns the file extension for the image's content type, dot included.
func (img Image) Ext() string {
	return extensions[img.ContentType]
}

// Inspect sniffs data and reads its dimensions without decoding pixels.
// The declared content type of the upload is ignored; only the bytes count.
// Images over MaxPixels are rejected here so Fit never decodes them.
func Inspect(data []byte) (Image, error) {
	ctype := http.DetectContentType(data)

	decodeConfig, ok := configDecoders[ctype]
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ctype)
	}

	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	return Image{
		Data:        data,
		ContentType: ctype,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// Fit scales img down to maxWidth, keeping the aspect ratio. Images that
// are narrow enough, or in a format that is never re-encoded, come back
// unchanged. maxWidth <= 0 disables resizing.
func Fit(img Image, maxWidth int) (Image, error) {
	codec, ok := resizable[img.ContentType]
	if !ok || maxWidth <= 0 || img.Width <= maxWidth {
		return img, nil
	}

	original, err := codec.decode(bytes.NewReader(img.Data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}

	ratio := float64(maxWidth) / float64(original.Bounds().Dx())
	height := max(int(float64(original.Bounds().Dy())*ratio), 1)

	bitmap := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(bitmap, bitmap.Bounds(), original, original.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := codec.encode(&buf, bitmap); err != nil {
		return Image{}, fmt.Errorf("encode image: %w", err)
	}

	return Image{
		Data:        buf.Bytes(),
		ContentType: img.ContentType,
		Width:       maxWidth,
		Height:      height,
	}, nil
}
