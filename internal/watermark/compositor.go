package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

var (
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode watermarked image")
)

const (
	// Font size as a fraction of the image width, with a floor so the mark
	// stays legible on small images.
	fontScale   = 0.05
	minFontSize = 10.0

	markAlpha   = 160 // out of 255
	jpegQuality = 85
)

// Compositor overlays a translucent text mark onto raster images. It is a pure
// transform: input bytes in, re-encoded JPEG bytes out, no I/O.
type Compositor struct {
	text string
	font *sfnt.Font
}

// NewCompositor creates a compositor that stamps the given text at the
// bottom-right corner of every image it processes.
func NewCompositor(text string) (*Compositor, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark font: %w", err)
	}
	return &Compositor{text: text, font: f}, nil
}

// Apply decodes src (JPEG or PNG), draws the mark and re-encodes to JPEG.
// The output has exactly the pixel dimensions of the input. On any failure no
// bytes are returned; the input is never passed through as a fake result.
func (c *Compositor) Apply(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Clone keeps the source pixels and dimensions; the drawer below only
	// touches the overlay's bounding region.
	canvas := imaging.Clone(img)
	if err := c.drawMark(canvas); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func (c *Compositor) drawMark(canvas *image.NRGBA) error {
	bounds := canvas.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	size := float64(width) * fontScale
	if size < minFontSize {
		size = minFontSize
	}

	face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: markAlpha}),
		Face: face,
	}

	margin := int(size / 2)
	x := width - margin - drawer.MeasureString(c.text).Ceil()
	if x < 0 {
		x = 0
	}
	y := height - margin
	if y < 0 {
		y = height
	}

	drawer.Dot = fixed.P(bounds.Min.X+x, bounds.Min.Y+y)
	drawer.DrawString(c.text)
	return nil
}
