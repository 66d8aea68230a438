package receipt

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterCommand(t *testing.T) {
	// 10x2: width is truncated to 8, first row black, second white.
	img := image.NewGray(image.Rect(0, 0, 10, 2))
	for x := 0; x < 10; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0})
		img.SetGray(x, 1, color.Gray{Y: 255})
	}

	cmd := rasterCommand(img)
	require.Len(t, cmd, 8+2)
	assert.Equal(t, []byte{0x1D, 0x76, 0x30, 0x00, 1, 0, 2, 0}, cmd[:8])
	assert.Equal(t, []byte{0xFF, 0x00}, cmd[8:])
}

func TestResizeToWidth(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 50))

	dst := resizeToWidth(src, 200)
	assert.Equal(t, 200, dst.Bounds().Dx())
	assert.Equal(t, 100, dst.Bounds().Dy())

	assert.Same(t, src, resizeToWidth(src, 100))
}

func TestImageJob(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 4))
	job := imageJob(img, 16)

	assert.True(t, bytes.HasPrefix(job, cmdInit))
	assert.True(t, bytes.HasSuffix(job, append(append([]byte{}, cmdFeed3...), cmdPartialCut...)))
}
