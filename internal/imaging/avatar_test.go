package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"quill/internal/models"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeAvatar_CropsAndBounds(t *testing.T) {
	out, err := NormalizeAvatar(pngBytes(t, 400, 300), 128)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Width)
	assert.Equal(t, 128, cfg.Height)
}

func TestNormalizeAvatar_SmallImageKeepsSize(t *testing.T) {
	out, err := NormalizeAvatar(pngBytes(t, 40, 60), 128)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestNormalizeAvatar_RejectsNonImages(t *testing.T) {
	_, err := NormalizeAvatar(nil, 128)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = NormalizeAvatar([]byte("plain text, not an image"), 128)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestSaveAndRemoveAvatar(t *testing.T) {
	dir := t.TempDir()

	rel, err := SaveAvatar(dir, []byte("webp-bytes"))
	require.NoError(t, err)
	assert.Regexp(t, `^avatars/[0-9a-f-]{36}\.webp$`, rel)

	got, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(got))

	require.NoError(t, RemoveAvatar(dir, rel))
	_, err = os.Stat(filepath.Join(dir, rel))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, RemoveAvatar(dir, rel))
}
