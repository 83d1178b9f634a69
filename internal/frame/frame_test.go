package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidBGRA(w, h int, b, g, r byte) *Frame {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = b, g, r, 0xFF
	}
	return &Frame{Width: w, Height: h, Format: FormatBGRA, Pix: pix}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wantErr bool
	}{
		{"nil", nil, true},
		{"zero size", &Frame{Format: FormatRGB}, true},
		{"unknown format", &Frame{Width: 1, Height: 1, Format: PixelFormat(9), Pix: []byte{0}}, true},
		{"short buffer", &Frame{Width: 2, Height: 2, Format: FormatRGB, Pix: make([]byte, 11)}, true},
		{"short stride", &Frame{Width: 2, Height: 1, Stride: 4, Format: FormatRGB, Pix: make([]byte, 6)}, true},
		{"packed", &Frame{Width: 2, Height: 2, Format: FormatRGB, Pix: make([]byte, 12)}, false},
		{"padded rows", &Frame{Width: 2, Height: 2, Stride: 8, Format: FormatRGB, Pix: make([]byte, 14)}, false},
		{"gray", &Frame{Width: 3, Height: 1, Format: FormatGray, Pix: make([]byte, 3)}, false},
		{"short depth", &Frame{Width: 2, Height: 2, Format: FormatRGB, Pix: make([]byte, 12), Depth: make([]byte, 3)}, true},
		{"with depth", &Frame{Width: 2, Height: 2, Format: FormatRGB, Pix: make([]byte, 12), Depth: make([]byte, 4)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFrame)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRGB_SwapsBGRAChannels(t *testing.T) {
	f := solidBGRA(4, 2, 10, 20, 30)

	pix, err := f.RGB(4, 2)
	require.NoError(t, err)
	require.Len(t, pix, 4*2*3)
	assert.Equal(t, []byte{30, 20, 10}, pix[:3])
	assert.Equal(t, []byte{30, 20, 10}, pix[len(pix)-3:])
}

func TestRGB_ResizesSolidColour(t *testing.T) {
	f := solidBGRA(64, 48, 0, 128, 255)

	pix, err := f.RGB(16, 12)
	require.NoError(t, err)
	require.Len(t, pix, 16*12*3)
	for i := 0; i < len(pix); i += 3 {
		assert.InDelta(t, 255, int(pix[i]), 1)
		assert.InDelta(t, 128, int(pix[i+1]), 1)
		assert.InDelta(t, 0, int(pix[i+2]), 1)
	}
}

func TestRGB_RejectsBadTarget(t *testing.T) {
	f := solidBGRA(4, 4, 0, 0, 0)
	_, err := f.RGB(0, 4)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestRGB_HonoursStride(t *testing.T) {
	// 2x2 RGB with two bytes of padding per row
	f := &Frame{
		Width: 2, Height: 2, Stride: 8, Format: FormatRGB,
		Pix: []byte{
			1, 2, 3, 4, 5, 6, 0xEE, 0xEE,
			7, 8, 9, 10, 11, 12,
		},
	}
	pix, err := f.RGB(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, pix)
}

func TestDecode_JPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	ts := time.Unix(1700000000, 0)
	f, err := Decode(buf.Bytes(), ts)
	require.NoError(t, err)
	assert.Equal(t, 32, f.Width)
	assert.Equal(t, 24, f.Height)
	assert.Equal(t, FormatRGBA, f.Format)
	assert.Equal(t, ts, f.Timestamp)

	pix, err := f.RGB(32, 24)
	require.NoError(t, err)
	assert.InDelta(t, 200, int(pix[0]), 8)
	assert.InDelta(t, 40, int(pix[1]), 8)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte("not an image"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEncodeJPEG_RoundTripsSize(t *testing.T) {
	f := solidBGRA(20, 10, 50, 60, 70)
	data, err := f.EncodeJPEG(90)
	require.NoError(t, err)

	back, err := Decode(data, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 20, back.Width)
	assert.Equal(t, 10, back.Height)
}

func TestDecodeDepth_SplitsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: uint8(40 * (y*3 + x + 1))})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	f, err := DecodeDepth(buf.Bytes(), time.Now())
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	assert.Equal(t, FormatRGB, f.Format)
	assert.Equal(t, []byte{10, 20, 30}, f.Pix[:3], "colour is not premultiplied")
	assert.Equal(t, []byte{40, 80, 120, 160, 200, 240}, f.Depth)
}

func TestDecodeDepth_OpaqueImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil))

	f, err := DecodeDepth(buf.Bytes(), time.Now())
	require.NoError(t, err)
	require.Len(t, f.Depth, 16)
	for _, d := range f.Depth {
		assert.Equal(t, byte(255), d)
	}
}

func TestAttachDepth_ScalesAndAverages(t *testing.T) {
	f := solidBGRA(4, 2, 0, 0, 0)

	depth := image.NewRGBA(image.Rect(0, 0, 2, 1))
	depth.Set(0, 0, color.RGBA{R: 30, G: 60, B: 90, A: 0xFF})
	depth.Set(1, 0, color.RGBA{R: 200, G: 200, B: 200, A: 0xFF})

	require.NoError(t, f.AttachDepth(depth))
	assert.Equal(t, []byte{60, 60, 200, 200, 60, 60, 200, 200}, f.Depth)
}

func TestAttachDepth_RejectsEmptyMap(t *testing.T) {
	f := solidBGRA(2, 2, 0, 0, 0)
	assert.ErrorIs(t, f.AttachDepth(image.NewGray(image.Rect(0, 0, 0, 0))), ErrInvalidFrame)
	assert.Nil(t, f.Depth)
}
