package media

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// IsBinaryMask decodes an image buffer to grayscale and reports whether
// every pixel is pure black or pure white. A buffer that does not decode is
// simply not a valid mask; decode failures never escalate.
func IsBinaryMask(data []byte) bool {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}

	gray := imaging.Grayscale(img)
	// Grayscale output is NRGBA with R=G=B; inspecting the red channel
	// covers the whole pixel.
	for i := 0; i < len(gray.Pix); i += 4 {
		if v := gray.Pix[i]; v != 0x00 && v != 0xFF {
			return false
		}
	}
	return true
}
