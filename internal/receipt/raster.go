package receipt

import (
	"image"
)

// rasterCommand converts img to a 1-bit ESC/POS raster block (GS v 0).
// Pixels darker than half intensity are printed.
func rasterCommand(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// ESC/POS width must be divisible by 8
	if width%8 != 0 {
		width = width - (width % 8)
	}

	rowBytes := width / 8
	raster := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (r + g + b) / 3
			if gray < 0x8000 {
				raster[y*rowBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}

	header := []byte{
		0x1D, 0x76, 0x30, 0x00,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	}
	return append(header, raster...)
}

// resizeToWidth scales src to targetWidth with nearest-neighbour sampling,
// keeping the aspect ratio.
func resizeToWidth(src image.Image, targetWidth int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || w == targetWidth {
		return src
	}

	scale := float64(targetWidth) / float64(w)
	newHeight := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			sx := bounds.Min.X + int(float64(x)/scale)
			sy := bounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// imageJob wraps a raster block with printer init, feed and cut.
func imageJob(img image.Image, paperWidth int) []byte {
	img = resizeToWidth(img, paperWidth)

	var job []byte
	job = append(job, cmdInit...)
	job = append(job, rasterCommand(img)...)
	job = append(job, cmdFeed3...)
	job = append(job, cmdPartialCut...)
	return job
}
