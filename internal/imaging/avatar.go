// Package imaging normalises uploaded avatars: square crop, bounded size,
// WebP encoding.
package imaging

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"net/http"
	"os"
	"path/filepath"

	"quill/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	MaxUploadBytes = 5 << 20
	WebPQuality    = 80
	avatarSubdir   = "avatars"
)

// NormalizeAvatar decodes content, crops it to a centred square no larger
// than maxDim pixels and re-encodes it as WebP.
func NormalizeAvatar(content []byte, maxDim int) ([]byte, error) {
	if len(content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if len(content) > MaxUploadBytes {
		return nil, models.NewValidationError("File too large (max 5MB)")
	}
	switch http.DetectContentType(content) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}

	square := cropSquare(decoded)
	scaled := fit(square, maxDim)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, scaled, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, models.NewInternalError(err)
	}
	return buf.Bytes(), nil
}

func cropSquare(src image.Image) image.Image {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 || b.Dx() == b.Dy() {
		return src
	}
	offset := image.Point{X: b.Min.X + (b.Dx()-side)/2, Y: b.Min.Y + (b.Dy()-side)/2}
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), src, offset, draw.Src)
	return dst
}

func fit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxDim, maxDim))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// SaveAvatar writes data under mediaDir and returns the path relative to it.
func SaveAvatar(mediaDir string, data []byte) (string, error) {
	rel := filepath.ToSlash(filepath.Join(avatarSubdir, uuid.NewString()+".webp"))
	abs := filepath.Join(mediaDir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := os.WriteFile(abs, data, 0o600); err != nil {
		return "", models.NewInternalError(err)
	}
	return rel, nil
}

// RemoveAvatar deletes a previously saved avatar. Missing files are ignored.
func RemoveAvatar(mediaDir, rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(mediaDir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
