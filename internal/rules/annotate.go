package rules

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

var annotationGreen = color.RGBA{R: 0, G: 255, B: 0, A: 255}

const bboxThickness = 2

// Annotate decodes a JPEG frame, draws the detection bounding box and a
// timestamp onto a copy and re-encodes it. The input frame bytes are never
// modified.
func Annotate(frameJPEG []byte, bbox model.BBox, ts time.Time) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frameJPEG))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	drawRect(img, bbox)
	drawLabel(img, ts.Format("2006-01-02 15:04:05"), 10, 30)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return out.Bytes(), nil
}

// drawRect draws the bounding box outline clipped to the image bounds.
func drawRect(img *image.RGBA, bbox model.BBox) {
	for t := 0; t < bboxThickness; t++ {
		for x := bbox.X1; x <= bbox.X2; x++ {
			setPixel(img, x, bbox.Y1+t)
			setPixel(img, x, bbox.Y2-t)
		}
		for y := bbox.Y1; y <= bbox.Y2; y++ {
			setPixel(img, bbox.X1+t, y)
			setPixel(img, bbox.X2-t, y)
		}
	}
}

func setPixel(img *image.RGBA, x, y int) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, annotationGreen)
	}
}

func drawLabel(img *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(annotationGreen),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
