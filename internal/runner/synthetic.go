package runner

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// synthesize renders a deterministic placeholder image derived from the
// request, so the full queue pipeline stays verifiable end-to-end without a
// model process.
func synthesize(req Request, modelName string) (*Result, error) {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}

	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", req.Prompt, req.NegPrompt, req.Seed))
	base := binary.BigEndian.Uint32(sum[:4])

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := base + uint32(x*7+y*13)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(v >> 16),
				G: uint8(v >> 8),
				B: uint8(v),
				A: 0xff,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("runner: encode synthetic image: %w", err)
	}
	return &Result{
		ImagePNG:  buf.Bytes(),
		Seed:      req.Seed,
		Width:     width,
		Height:    height,
		Steps:     req.Steps,
		ModelName: modelName,
	}, nil
}
