package fusionnet

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// GrayLayers renders each mask channel of sample n as a grayscale image.
func GrayLayers(mask *Tensor, n int) []*image.Gray {
	if mask.check() != nil || n < 0 || n >= mask.N {
		return nil
	}
	w, h := mask.W, mask.H
	out := make([]*image.Gray, mask.C)
	for ch := range mask.C {
		layer := image.NewGray(image.Rect(0, 0, w, h))
		plane := mask.Plane(n, ch)
		for y := range h {
			for x := range w {
				a := min(1.0, max(0.0, plane[y*w+x]))
				layer.SetGray(x, y, color.Gray{Y: uint8(a*255 + 0.5)})
			}
		}
		out[ch] = layer
	}
	return out
}

// Composite paints sample n of mask with one palette color per channel.
// Mask channels sum to one at every pixel, so each output pixel is a convex
// combination of palette colors.
func Composite(mask *Tensor, n int, palette []colorful.Color) (*image.RGBA, error) {
	if err := mask.check(); err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	if n < 0 || n >= mask.N {
		return nil, fmt.Errorf("composite: sample %d out of range for %v: %w", n, mask.Shape(), ErrShapeMismatch)
	}
	if len(palette) < mask.C {
		return nil, fmt.Errorf("composite: %d palette colors for %d mask channels: %w", len(palette), mask.C, ErrChannelMismatch)
	}
	w, h := mask.W, mask.H
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			var c colorful.Color
			for ch := range mask.C {
				a := mask.At(n, ch, y, x)
				c.R += a * palette[ch].R
				c.G += a * palette[ch].G
				c.B += a * palette[ch].B
			}
			img.SetRGBA(x, y, toRGBA(c))
		}
	}
	return img, nil
}

// ToImage renders sample n of a 3-channel tensor with values in [0,1].
// Out-of-range values are clamped.
func ToImage(t *Tensor, n int) (*image.RGBA, error) {
	if err := t.check(); err != nil {
		return nil, fmt.Errorf("to image: %w", err)
	}
	if t.C != imageChannels {
		return nil, fmt.Errorf("to image: want %d channels, got %v: %w", imageChannels, t.Shape(), ErrChannelMismatch)
	}
	if n < 0 || n >= t.N {
		return nil, fmt.Errorf("to image: sample %d out of range for %v: %w", n, t.Shape(), ErrShapeMismatch)
	}
	img := image.NewRGBA(image.Rect(0, 0, t.W, t.H))
	for y := range t.H {
		for x := range t.W {
			img.SetRGBA(x, y, toRGBA(colorful.Color{
				R: t.At(n, 0, y, x),
				G: t.At(n, 1, y, x),
				B: t.At(n, 2, y, x),
			}))
		}
	}
	return img, nil
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
