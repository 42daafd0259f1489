package upload

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"

	"github.com/phrazzld/printflow-api/internal/domain"
)

// ValidateCombinedFile checks a reassembled blob against the format contract
// the print pipeline requires: a PNG in truecolor (RGB) or truecolor-alpha
// (RGBA) mode. Grayscale and palette PNGs lose fidelity in production and
// are rejected. Only the header is decoded; the pixel data is not read.
func ValidateCombinedFile(data []byte) error {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: not a valid PNG: %v", domain.ErrInvalidFile, err)
	}

	switch cfg.ColorModel {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return nil
	default:
		return fmt.Errorf("%w: PNG must be in RGB or RGBA mode", domain.ErrInvalidFile)
	}
}
