package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func animatedGIF(t *testing.T, w, h int, colors ...color.Color) []byte {
	t.Helper()

	anim := &gif.GIF{Config: image.Config{Width: w, Height: h, ColorModel: color.Palette(palette.Plan9)}}
	for _, c := range colors {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				frame.Set(x, y, c)
			}
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}

	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func TestWidthResizer(t *testing.T) {
	tests := []struct {
		name          string
		w, h, target  int
		wantW, wantH int
	}{
		{"shrinks wide image", 800, 400, 200, 200, 100},
		{"keeps narrow image", 100, 300, 200, 100, 300},
		{"keeps exact width", 200, 50, 200, 200, 50},
		{"zero width is a no-op", 50, 50, 0, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := WidthResizer{Width: tt.target}.Modify(solid(tt.w, tt.h, color.White))
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestTopLeftCropper(t *testing.T) {
	src := solid(300, 300, color.White)
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})

	out := TopLeftCropper{Width: 100, Height: 50}.Modify(src)

	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
	r, g, b, _ := out.At(out.Bounds().Min.X, out.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
}

func TestThumbnailPipeline_ExactSize(t *testing.T) {
	p := &ImageProcessor{img: solid(600, 900, color.White)}

	p.Apply(Thumbnail(200, 200)...)

	assert.Equal(t, image.Pt(200, 200), p.img.Bounds().Size())
}

func TestLoadFrame_SelectsFirstFrame(t *testing.T) {
	data := animatedGIF(t, 40, 20, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255})

	p := &ImageProcessor{}
	require.NoError(t, p.LoadFrame(bytes.NewReader(data), 0))

	assert.Equal(t, image.Pt(40, 20), p.img.Bounds().Size())

	r, _, b, _ := p.img.At(5, 5).RGBA()
	assert.Greater(t, r, b)
}

func TestLoadFrame_OutOfRange(t *testing.T) {
	data := animatedGIF(t, 10, 10, color.White)

	p := &ImageProcessor{}
	assert.Error(t, p.LoadFrame(bytes.NewReader(data), 3))
}

func TestLoadFrame_NotAGIF(t *testing.T) {
	p := &ImageProcessor{}
	assert.Error(t, p.LoadFrame(bytes.NewReader([]byte("nope")), 0))
}

func TestEncode(t *testing.T) {
	p := &ImageProcessor{img: solid(16, 16, color.White)}

	for _, format := range []string{"png", "jpeg", "webp"} {
		t.Run(format, func(t *testing.T) {
			data, err := p.Encode(format)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}

	data, err := p.Encode("png")
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	_, err = p.Encode("tiff")
	assert.Error(t, err)
}

func TestEncode_NothingLoaded(t *testing.T) {
	_, err := (&ImageProcessor{}).Encode("png")
	assert.Error(t, err)
}
