package share

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRPNG(t *testing.T) {
	data, err := QRPNG("hello")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, bounds.Dx(), bounds.Dy())
	assert.Zero(t, bounds.Dx()%ModuleSize)
	// version 1 is 21 modules plus a quiet zone on each side
	assert.Equal(t, (21+8)*ModuleSize, bounds.Dx())

	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r, "quiet zone should be white")

	// top-left finder pattern starts after the quiet zone
	r, _, _, _ = img.At(4*ModuleSize, 4*ModuleSize).RGBA()
	assert.Equal(t, uint32(0), r, "finder pattern should be black")
}

func TestQRPNG_Errors(t *testing.T) {
	_, err := QRPNG("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = QRPNG(strings.Repeat("transcription ", 500))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestCopyToClipboard_Empty(t *testing.T) {
	assert.ErrorIs(t, CopyToClipboard(""), ErrEmpty)
}
