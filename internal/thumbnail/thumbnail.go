// Package thumbnail produces bounded-size preview images from uploaded
// print files and maps source keys to their derived artifact keys.
package thumbnail

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// Derived artifacts fit inside a MaxWidth x MaxHeight bounding box with the
// source aspect ratio preserved.
const (
	MaxWidth  = 100
	MaxHeight = 100
)

// DerivedKey maps a source file key to the storage key of its thumbnail.
// The mapping is deterministic: orders/X/front.png -> orders/X/front-min.png.
func DerivedKey(fileKey string) string {
	ext := path.Ext(fileKey)
	return strings.TrimSuffix(fileKey, ext) + "-min.png"
}

// Generator produces PNG thumbnails. Output is always PNG regardless of the
// source encoding so transparency survives the resize.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate decodes src, scales it to fit the thumbnail bounding box, and
// re-encodes it as PNG. A source that cannot be decoded is a permanent
// failure; retrying will not help.
func (g *Generator) Generate(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to decode source image: %w", err)
	}

	thumb := imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
