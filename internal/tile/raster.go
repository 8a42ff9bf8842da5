package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/cshum/vipsgen/vips"

	"asciimap/internal/surface"
)

// RasterTile is a satellite tile pre-rendered into character cells. Each cell
// covers two image pixels stacked vertically.
type RasterTile struct {
	Rows [][]surface.Cell
}

func (r *RasterTile) Kind() Kind { return Raster }

// RasterDecoder turns raw image bytes into a RasterTile.
type RasterDecoder interface {
	DecodeRaster(data []byte) (*RasterTile, error)
}

// VipsDecoder decodes JPEG tiles with libvips. vips.Startup must have been
// called before use.
type VipsDecoder struct {
	rows    int
	unicode bool
}

// NewVipsDecoder returns a decoder producing rows x 2*rows cell tiles.
func NewVipsDecoder(rows int, unicode bool) *VipsDecoder {
	return &VipsDecoder{rows: rows, unicode: unicode}
}

func (d *VipsDecoder) DecodeRaster(data []byte) (*RasterTile, error) {
	img, err := vips.NewJpegloadBuffer(data, vips.DefaultJpegloadBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	if img.Width() == 0 || img.Height() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	side := float64(2 * d.rows)
	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	resizeOpts.Vscale = side / float64(img.Height())
	if err := img.Resize(side/float64(img.Width()), resizeOpts); err != nil {
		return nil, fmt.Errorf("failed to resize: %w", err)
	}

	// PNG keeps the resized pixels exact on their way to image.Image.
	out, err := img.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return RasterFromImage(decoded, d.rows, d.unicode), nil
}

// RasterFromImage samples img onto a grid of rows x 2*rows cells. With
// unicode each cell is an upper half block coloured by its two pixels,
// otherwise a '#' in the colour of the top pixel.
func RasterFromImage(img image.Image, rows int, unicode bool) *RasterTile {
	b := img.Bounds()
	side := 2 * rows
	at := func(px, py int) surface.Color {
		x := b.Min.X + px*b.Dx()/side
		y := b.Min.Y + py*b.Dy()/side
		r, g, bl, _ := img.At(x, y).RGBA()
		return surface.RGB(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
	}

	out := make([][]surface.Cell, rows)
	for row := range out {
		cells := make([]surface.Cell, side)
		for col := range cells {
			top := at(col, 2*row)
			if unicode {
				cells[col] = surface.Cell{Rune: '▀', Fg: top, Bg: at(col, 2*row+1)}
			} else {
				cells[col] = surface.Cell{Rune: '#', Fg: top}
			}
		}
		out[row] = cells
	}
	return &RasterTile{Rows: out}
}
