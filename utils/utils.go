package utils

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/setanarut/fusionnet"
)

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

var paletteMethodNames = [...]string{"dominantcolor", "kmeans"}

func (m PaletteMethod) String() string {
	if m < 0 || int(m) >= len(paletteMethodNames) {
		return "PaletteMethod(" + strconv.Itoa(int(m)) + ")"
	}
	return paletteMethodNames[m]
}

// ============ IMAGE I/O ============

// ReadImage decodes PNG, JPEG, GIF, BMP, TIFF and WebP files.
func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveGrayImages writes images as dir/mask_00.png, dir/mask_01.png, ...
func SaveGrayImages(images []*image.Gray, dir string) error {
	for i := range images {
		name := filepath.Join(dir, "mask_0"+strconv.Itoa(i)+".png")
		if err := SaveImage(images[i], name); err != nil {
			return err
		}
	}
	return nil
}

// SavePalette writes one tileSize×tileSize swatch per color, left to right.
func SavePalette(palette []colorful.Color, tileSize int, filename string) error {
	if len(palette) == 0 {
		return fmt.Errorf("empty palette")
	}
	if tileSize <= 0 {
		tileSize = 64
	}
	img := image.NewRGBA(image.Rect(0, 0, tileSize*len(palette), tileSize))
	for i, c := range palette {
		r, g, b := c.Clamped().RGB255()
		for y := range tileSize {
			for x := i * tileSize; x < (i+1)*tileSize; x++ {
				img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}
	return SaveImage(img, filename)
}

// Resize scales img to w×h with Lanczos3 resampling.
// A zero w or h preserves the aspect ratio.
func Resize(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(max(w, 0)), uint(max(h, 0)), img, resize.Lanczos3)
}

// ============ TENSORS ============

// ImageTensors builds the network inputs for img: x is [1,3,H,W] and r, g,
// b are the same planes as [1,1,H,W] tensors. Values are in [0,1].
func ImageTensors(img image.Image) (x, r, g, b *fusionnet.Tensor) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	x = fusionnet.NewTensor(1, 3, h, w)
	for y := range h {
		for xx := range w {
			cr, cg, cb, _ := img.At(bounds.Min.X+xx, bounds.Min.Y+y).RGBA()
			x.Set(0, 0, y, xx, float64(cr)/65535.0)
			x.Set(0, 1, y, xx, float64(cg)/65535.0)
			x.Set(0, 2, y, xx, float64(cb)/65535.0)
		}
	}
	planes := make([]*fusionnet.Tensor, 3)
	for c := range planes {
		planes[c] = fusionnet.NewTensor(1, 1, h, w)
		copy(planes[c].Data, x.Plane(0, c))
	}
	return x, planes[0], planes[1], planes[2]
}

// ============ PALETTE ============

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// SortPaletteByBrightness orders colors from darkest to brightest by CIE
// lightness.
func SortPaletteByBrightness(palette []colorful.Color) {
	slices.SortStableFunc(palette, func(a, b colorful.Color) int {
		return cmp.Compare(lightness(a), lightness(b))
	})
}

func lightness(c colorful.Color) float64 {
	l, _, _ := c.Lab()
	return l
}

// ExtractPalette returns exactly k colors for painting mask channels.
// Missing colors are filled with evenly spaced hues. An empty image gives
// hues only.
func ExtractPalette(img image.Image, k int, method PaletteMethod) []colorful.Color {
	if k <= 0 {
		return nil
	}
	if img.Bounds().Empty() {
		return padHues(nil, k)
	}
	var weighted []weightedColor
	if method == PaletteMethodKMeans {
		weighted = kmeansColors(img, k)
		if len(weighted) == 0 {
			log.Println("palette warning: kmeans returned empty palette, falling back to dominantcolor")
		}
	}
	if len(weighted) == 0 {
		weighted = dominantColors(img, k)
	}
	slices.SortStableFunc(weighted, func(a, b weightedColor) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	out := make([]colorful.Color, 0, k)
	for _, wc := range weighted[:min(k, len(weighted))] {
		out = append(out, wc.Col.Clamped())
	}
	return padHues(out, k)
}

// padHues appends evenly spaced hues until palette holds k colors.
func padHues(palette []colorful.Color, k int) []colorful.Color {
	for i := len(palette); i < k; i++ {
		palette = append(palette, colorful.Hsv(360*float64(i)/float64(k), 0.7, 0.9))
	}
	return palette
}

func dominantColors(img image.Image, k int) []weightedColor {
	var out []weightedColor
	for _, c := range dominantcolor.FindWeight(img, k) {
		col, _ := colorful.MakeColor(c.RGBA)
		out = append(out, weightedColor{Col: col, Weight: max(c.Weight, 1e-6)})
	}
	return out
}

func kmeansColors(img image.Image, k int) []weightedColor {
	dataset := samplePixels(img, kmeansSamples)
	if len(dataset) < k {
		return nil
	}
	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil
	}
	var out []weightedColor
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		out = append(out, weightedColor{
			Col:    colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]},
			Weight: float64(len(c.Observations)),
		})
	}
	return out
}

// kmeansSamples bounds the number of pixels handed to kmeans.
const kmeansSamples = 12000

// samplePixels reads opaque pixels on a square grid whose stride keeps the
// result at or below limit. Channels are scaled to [0,1].
func samplePixels(img image.Image, limit int) clusters.Observations {
	b := img.Bounds()
	area := b.Dx() * b.Dy()
	if area == 0 || limit <= 0 {
		return nil
	}
	stride := 1
	for ((b.Dx()+stride-1)/stride)*((b.Dy()+stride-1)/stride) > limit {
		stride++
	}
	obs := make(clusters.Observations, 0, min(area, limit))
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			obs = append(obs, clusters.Coordinates{
				float64(r) / 0xffff, float64(g) / 0xffff, float64(bl) / 0xffff,
			})
		}
	}
	return obs
}
