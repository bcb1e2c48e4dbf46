package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// WidthResizer scales an image down to Width, keeping the aspect ratio.
// Images already narrower than Width are left untouched.
type WidthResizer struct {
	Width int
}

func (r WidthResizer) Modify(img image.Image) image.Image {
	w := img.Bounds().Dx()
	if r.Width <= 0 || w <= r.Width {
		return img
	}
	return imaging.Resize(img, r.Width, 0, imaging.Lanczos)
}

// TopLeftCropper cuts a Width x Height region anchored at the top-left corner.
// The result is smaller when the image does not cover the whole region.
type TopLeftCropper struct {
	Width  int
	Height int
}

func (c TopLeftCropper) Modify(img image.Image) image.Image {
	if c.Width <= 0 || c.Height <= 0 {
		return img
	}
	b := img.Bounds()
	return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+c.Width, b.Min.Y+c.Height))
}

// Thumbnail is the resize-then-crop pipeline used for previews.
func Thumbnail(width, height int) []ImageModifier {
	return []ImageModifier{
		WidthResizer{Width: width},
		TopLeftCropper{Width: width, Height: height},
	}
}

// Load images, apply actions on them and then encode
type ImageProcessor struct {
	img image.Image
}

// LoadFrame decodes an animated GIF and keeps frame n composed onto the
// logical screen, so partial frames keep their offset.
func (i *ImageProcessor) LoadFrame(r io.Reader, n int) error {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return fmt.Errorf("decode gif: %w", err)
	}
	if n < 0 || n >= len(g.Image) {
		return fmt.Errorf("gif has %d frames, frame %d requested", len(g.Image), n)
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[n].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	for idx := 0; idx <= n; idx++ {
		frame := g.Image[idx]
		if idx < n && len(g.Disposal) > idx && g.Disposal[idx] == gif.DisposalBackground {
			continue
		}
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
	}

	i.img = canvas
	return nil
}

func (i *ImageProcessor) Apply(modifiers ...ImageModifier) {
	for _, m := range modifiers {
		i.img = m.Modify(i.img)
	}
}

// Encode writes the current image in format (png, jpeg or webp).
func (i *ImageProcessor) Encode(format string) ([]byte, error) {
	if i.img == nil {
		return nil, fmt.Errorf("no image loaded")
	}

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, i.img)
	case "jpeg", "jpg":
		err = jpeg.Encode(buf, i.img, &jpeg.Options{Quality: 90})
	case "webp":
		err = webp.Encode(buf, i.img, &webp.Options{
			Lossless: false,
			Quality:  90,
			Exact:    true,
		})
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
