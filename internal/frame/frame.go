// Package frame holds raw camera buffers and converts them to model input.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"golang.org/x/image/draw"
)

// PixelFormat is the byte layout of a frame.
type PixelFormat int

const (
	// FormatBGRA is what most capture devices hand out natively.
	FormatBGRA PixelFormat = iota
	FormatRGBA
	FormatRGB
	FormatGray
)

func (p PixelFormat) String() string {
	switch p {
	case FormatBGRA:
		return "BGRA"
	case FormatRGBA:
		return "RGBA"
	case FormatRGB:
		return "RGB"
	case FormatGray:
		return "Gray"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// BytesPerPixel returns 0 for unknown formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatBGRA, FormatRGBA:
		return 4
	case FormatRGB:
		return 3
	case FormatGray:
		return 1
	default:
		return 0
	}
}

var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one camera buffer. Stride may be zero for tightly packed rows.
type Frame struct {
	Width     int
	Height    int
	Stride    int
	Format    PixelFormat
	Pix       []byte
	Timestamp time.Time

	// Depth is an optional Gray plane, Width*Height bytes, row-major.
	// Zero means no depth reading for that pixel.
	Depth []byte
}

func (f *Frame) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * f.Format.BytesPerPixel()
}

// Validate checks dimensions, format and buffer length.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: unknown format %v", ErrInvalidFrame, f.Format)
	}
	row := f.Width * bpp
	if f.stride() < row {
		return fmt.Errorf("%w: stride %d shorter than row %d", ErrInvalidFrame, f.stride(), row)
	}
	if need := f.stride()*(f.Height-1) + row; len(f.Pix) < need {
		return fmt.Errorf("%w: buffer has %d bytes, need %d", ErrInvalidFrame, len(f.Pix), need)
	}
	if f.Depth != nil && len(f.Depth) < f.Width*f.Height {
		return fmt.Errorf("%w: depth plane has %d bytes, need %d", ErrInvalidFrame, len(f.Depth), f.Width*f.Height)
	}
	return nil
}

// rgbAt returns the pixel at (x, y). The frame must be valid.
func (f *Frame) rgbAt(x, y int) (r, g, b uint8) {
	bpp := f.Format.BytesPerPixel()
	i := y*f.stride() + x*bpp
	switch f.Format {
	case FormatBGRA:
		return f.Pix[i+2], f.Pix[i+1], f.Pix[i]
	case FormatGray:
		return f.Pix[i], f.Pix[i], f.Pix[i]
	default:
		return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
	}
}

// Image converts the frame to an opaque RGBA image.
func (f *Frame) Image() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.rgbAt(x, y)
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xFF
		}
	}
	return img, nil
}

// RGB returns interleaved RGB8 pixels scaled to w x h with bilinear filtering.
func (f *Frame) RGB(w, h int) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", ErrInvalidFrame, w, h)
	}

	if w == f.Width && h == f.Height {
		out := make([]byte, 0, w*h*3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b := f.rgbAt(x, y)
				out = append(out, r, g, b)
			}
		}
		return out, nil
	}

	src, err := f.Image()
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]byte, w*h*3)
	for i, j := 0, 0; i < len(dst.Pix); i, j = i+4, j+3 {
		out[j], out[j+1], out[j+2] = dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2]
	}
	return out, nil
}

// FromImage copies any image into an RGBA frame.
func FromImage(img image.Image, ts time.Time) *Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Frame{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Stride:    rgba.Stride,
		Format:    FormatRGBA,
		Pix:       rgba.Pix,
		Timestamp: ts,
	}
}

// Decode parses a JPEG or PNG buffer.
func Decode(data []byte, ts time.Time) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidFrame, err)
	}
	return FromImage(img, ts), nil
}

// DecodeDepth parses an image from a depth camera: colour in RGB and depth
// in the alpha channel. The result is an RGB frame with a depth plane.
// Images without alpha get a constant depth of 255.
func DecodeDepth(data []byte, ts time.Time) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidFrame, err)
	}

	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)
	depth := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			j := y*w + x
			copy(pix[j*3:j*3+3], row[x*4:x*4+3])
			depth[j] = row[x*4+3]
		}
	}
	return &Frame{Width: w, Height: h, Format: FormatRGB, Pix: pix, Depth: depth, Timestamp: ts}, nil
}

// AttachDepth stores a separately captured depth map as the frame's depth
// plane. The map is scaled to the frame size; each value is the mean of its
// RGB channels.
func (f *Frame) AttachDepth(depth image.Image) error {
	f.Depth = nil
	if err := f.Validate(); err != nil {
		return err
	}
	if depth == nil || depth.Bounds().Empty() {
		return fmt.Errorf("%w: empty depth map", ErrInvalidFrame)
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), depth, depth.Bounds(), draw.Src, nil)

	plane := make([]byte, f.Width*f.Height)
	for i, j := 0, 0; j < len(plane); i, j = i+4, j+1 {
		plane[j] = uint8((int(dst.Pix[i]) + int(dst.Pix[i+1]) + int(dst.Pix[i+2])) / 3)
	}
	f.Depth = plane
	return nil
}

// EncodeJPEG encodes the frame with the given quality (1-100).
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
