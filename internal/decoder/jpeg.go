package decoder

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/gen2brain/jpegn"
)

// decodeJPEG is swapped out in tests.
var decodeJPEG = jpegn.Decode

// JPEG is the Capability backed by the jpegn decoder. Progressive and CMYK
// streams fall back to the standard library inside jpegn.
type JPEG struct {
	// Upsample selects the chroma upsampling filter.
	Upsample jpegn.UpsampleMethod
}

// Decode implements Capability. A panic inside jpegn on corrupted scan
// data is reported as an error like any other malformed stream.
func (j JPEG) Decode(data []byte) (rgb RGBImage, err error) {
	if len(data) == 0 {
		return RGBImage{}, ErrEmptyInput
	}

	defer func() {
		if r := recover(); r != nil {
			rgb, err = RGBImage{}, &LibraryPanicError{Value: r}
		}
	}()

	img, err := decodeJPEG(bytes.NewReader(data), &jpegn.Options{
		ToRGBA:         true,
		UpsampleMethod: j.Upsample,
	})
	if err != nil {
		return RGBImage{}, err
	}

	b := img.Bounds()
	if b.Dx() > math.MaxUint16 || b.Dy() > math.MaxUint16 {
		return RGBImage{}, ErrTooLarge
	}

	return RGBImage{
		Pix:    flattenRGB(img),
		Width:  uint16(b.Dx()),
		Height: uint16(b.Dy()),
	}, nil
}

// flattenRGB drops alpha and packs img into RGB triples.
func flattenRGB(img image.Image) []byte {
	b := img.Bounds()
	pix := make([]byte, 0, b.Dx()*b.Dy()*3)

	switch src := img.(type) {
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := src.PixOffset(b.Min.X, y)
			row := src.Pix[i : i+b.Dx()*4]
			for x := 0; x < len(row); x += 4 {
				pix = append(pix, row[x], row[x+1], row[x+2])
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := src.PixOffset(b.Min.X, y)
			for _, v := range src.Pix[i : i+b.Dx()] {
				pix = append(pix, v, v, v)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				pix = append(pix, c.R, c.G, c.B)
			}
		}
	}

	return pix
}
