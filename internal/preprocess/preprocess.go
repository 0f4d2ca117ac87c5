// Package preprocess turns uploaded image bytes into the tensor the
// classifier expects: decoded, flattened to opaque 3-channel color, resized
// to the model's input size and scaled to [0,1].
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/carid/internal/model"
)

// ErrEmptyInput is wrapped by DecodeError when no bytes were supplied.
var ErrEmptyInput = errors.New("empty input")

// DecodeError reports input that could not be turned into a pixel grid.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "preprocess: cannot decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ChannelOrder selects how color channels are laid out in the tensor.
type ChannelOrder string

const (
	BGR ChannelOrder = "bgr"
	RGB ChannelOrder = "rgb"
)

// Options configures a Preprocessor.
type Options struct {
	Height       int
	Width        int
	Filter       string // nearest, bilinear, bicubic, mitchell, lanczos2, lanczos3
	ChannelOrder ChannelOrder
	// MaxPixels rejects images whose header declares more pixels. Zero
	// disables the check.
	MaxPixels int
}

// Preprocessor is stateless after construction and safe for concurrent use.
type Preprocessor struct {
	height    int
	width     int
	filter    resize.InterpolationFunction
	order     [3]int
	maxPixels int
}

// New validates opts and builds a Preprocessor.
func New(opts Options) (*Preprocessor, error) {
	if opts.Height <= 0 || opts.Width <= 0 {
		return nil, fmt.Errorf("preprocess: invalid target size %dx%d", opts.Width, opts.Height)
	}
	filter, err := ParseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	p := &Preprocessor{
		height:    opts.Height,
		width:     opts.Width,
		filter:    filter,
		maxPixels: opts.MaxPixels,
	}
	switch ChannelOrder(strings.ToLower(string(opts.ChannelOrder))) {
	case BGR, "":
		p.order = [3]int{2, 1, 0}
	case RGB:
		p.order = [3]int{0, 1, 2}
	default:
		return nil, fmt.Errorf("preprocess: unknown channel order %q", opts.ChannelOrder)
	}
	return p, nil
}

// ParseFilter maps a filter name to an nfnt/resize interpolation function.
// The empty string selects bilinear.
func ParseFilter(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(name) {
	case "nearest":
		return resize.NearestNeighbor, nil
	case "", "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "mitchell":
		return resize.MitchellNetravali, nil
	case "lanczos2":
		return resize.Lanczos2, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("preprocess: unknown resize filter %q", name)
	}
}

// Size returns the target height and width.
func (p *Preprocessor) Size() (h, w int) {
	return p.height, p.width
}

// Preprocess decodes data and returns a (1, H, W, 3) tensor.
func (p *Preprocessor) Preprocess(data []byte) (*model.Tensor, error) {
	img, err := p.decode(data)
	if err != nil {
		return nil, err
	}
	return p.FromImage(img), nil
}

// decode turns data into a pixel grid after checking the declared size.
func (p *Preprocessor) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyInput}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if p.maxPixels > 0 && cfg.Width*cfg.Height > p.maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("image is %dx%d, exceeds %d pixels", cfg.Width, cfg.Height, p.maxPixels)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// FromImage resizes and normalizes an already decoded image.
func (p *Preprocessor) FromImage(img image.Image) *model.Tensor {
	flat := flatten(img)
	resized := resize.Resize(uint(p.width), uint(p.height), flat, p.filter)

	t := model.NewTensor(p.height, p.width)
	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			rgb := [3]float32{
				float32(r>>8) / 255.0,
				float32(g>>8) / 255.0,
				float32(b>>8) / 255.0,
			}
			t.Data[i] = rgb[p.order[0]]
			t.Data[i+1] = rgb[p.order[1]]
			t.Data[i+2] = rgb[p.order[2]]
			i += model.Channels
		}
	}
	return t
}

// flatten converts any decoded image into an opaque RGBA grid anchored at
// (0,0). Alpha is discarded rather than composited, so transparent pixels
// keep their stored color.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := s.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di] = s.Pix[si]
				dst.Pix[di+1] = s.Pix[si+1]
				dst.Pix[di+2] = s.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			si := s.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				// Big-endian 16-bit channels; keep the high byte.
				dst.Pix[di] = s.Pix[si]
				dst.Pix[di+1] = s.Pix[si+2]
				dst.Pix[di+2] = s.Pix[si+4]
				dst.Pix[di+3] = 0xff
				si += 8
				di += 4
			}
		}
	case *image.NYCbCrA:
		draw.Draw(dst, dst.Bounds(), &s.YCbCr, b.Min, draw.Src)
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
			}
		}
	}
	return dst
}
