package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), nil))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, solid(w, h), nil))
	return buf.Bytes()
}

// pngHeader returns a PNG that is only a signature and an IHDR chunk. It
// declares w x h grayscale pixels without carrying any pixel data, which is
// enough for DecodeConfig.
func pngHeader(w, h uint32) []byte {
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr[:]...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType string
		wantExt  string
	}{
		{"png", encodePNG(t, 40, 20), MIMETypePNG, ".png"},
		{"jpeg", encodeJPEG(t, 40, 20), MIMETypeJPEG, ".jpg"},
		{"gif", encodeGIF(t, 40, 20), MIMETypeGIF, ".gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Inspect(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, img.ContentType)
			assert.Equal(t, tt.wantExt, img.Ext())
			assert.Equal(t, 40, img.Width)
			assert.Equal(t, 20, img.Height)
		})
	}
}

func TestInspect_Rejects(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		_, err := Inspect([]byte("definitely not an image"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("pdf", func(t *testing.T) {
		_, err := Inspect([]byte("%PDF-1.7\n"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("dimensions over the pixel cap", func(t *testing.T) {
		data := pngHeader(12000, 12000)
		_, err := Inspect(data)
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Less(t, len(data), 64, "the cap is about declared size, not file size")
	})

	t.Run("huge width times height does not overflow", func(t *testing.T) {
		_, err := Inspect(pngHeader(1<<30, 1<<30))
		assert.Error(t, err)
	})

	t.Run("truncated png", func(t *testing.T) {
		data := encodePNG(t, 10, 10)[:12]
		_, err := Inspect(data)
		assert.ErrorIs(t, err, ErrCorruptImage)
	})
}

func TestInspect_AtPixelCap(t *testing.T) {
	img, err := Inspect(pngHeader(8000, 5000))
	require.NoError(t, err)
	assert.Equal(t, MaxPixels, img.Width*img.Height)
}

func TestFit_ShrinksWideImages(t *testing.T) {
	for _, data := range [][]byte{encodePNG(t, 400, 200), encodeJPEG(t, 400, 200)} {
		img, err := Inspect(data)
		require.NoError(t, err)

		fitted, err := Fit(img, 100)
		require.NoError(t, err)

		assert.Equal(t, img.ContentType, fitted.ContentType)
		assert.Equal(t, 100, fitted.Width)
		assert.Equal(t, 50, fitted.Height)

		// the new bytes must describe the new size
		again, err := Inspect(fitted.Data)
		require.NoError(t, err)
		assert.Equal(t, 100, again.Width)
		assert.Equal(t, 50, again.Height)
	}
}

func TestFit_LeavesOthersAlone(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		maxWidth int
	}{
		{"narrow enough", encodePNG(t, 80, 40), 100},
		{"exactly max width", encodePNG(t, 100, 40), 100},
		{"resizing disabled", encodePNG(t, 400, 200), 0},
		{"gif is never re-encoded", encodeGIF(t, 400, 200), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Inspect(tt.data)
			require.NoError(t, err)

			fitted, err := Fit(img, tt.maxWidth)
			require.NoError(t, err)
			assert.Equal(t, tt.data, fitted.Data)
			assert.Equal(t, img.Width, fitted.Width)
		})
	}
}
