// Package imageproc shrinks user supplied pictures into the inline data
// URLs stored on participants (avatars) and events (cover images).
package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

const (
	AvatarWidth = 150
	CoverWidth  = 800
	JPEGQuality = 70

	dataURLPrefix = "data:image/jpeg;base64,"
)

// Thumbnail decodes an image, scales it down to maxWidth keeping the aspect
// ratio (smaller images are left alone) and returns it as a JPEG data URL
func Thumbnail(r io.Reader, maxWidth int) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ThumbnailFile is Thumbnail over a file on disk. An empty path yields an
// empty data URL so callers can pass optional flags straight through.
func ThumbnailFile(path string, maxWidth int) (string, error) {
	if path == "" {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return Thumbnail(f, maxWidth)
}

// Decode turns a data URL produced by Thumbnail back into raw JPEG bytes
func Decode(dataURL string) ([]byte, error) {
	if len(dataURL) < len(dataURLPrefix) || dataURL[:len(dataURLPrefix)] != dataURLPrefix {
		return nil, fmt.Errorf("not a jpeg data url")
	}
	return base64.StdEncoding.DecodeString(dataURL[len(dataURLPrefix):])
}
