package assethost

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

// Probe returns the display dimensions of an image, or zeros when r is not a
// decodable image (videos, unknown formats). EXIF orientations 5-8 rotate the
// picture by a quarter turn, so width and height are swapped for them.
func Probe(r io.ReadSeeker) (width, height int) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0
	}
	width, height = cfg.Width, cfg.Height

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return width, height
	}
	if orientation(r) >= 5 {
		width, height = height, width
	}
	return width, height
}

func orientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}
