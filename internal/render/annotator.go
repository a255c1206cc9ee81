// Package render produces the annotated frame overlay: every detection box
// with a "label confidence" tag, violating persons highlighted in red. It
// is purely presentational and holds no state.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"safetyeye/internal/logger"
	"safetyeye/pkg/models"
)

var (
	colorOK        = color.RGBA{0, 200, 0, 255}
	colorViolation = color.RGBA{255, 0, 0, 255}
	colorLabelBG   = color.RGBA{0, 0, 0, 180}
	colorLabelText = color.RGBA{255, 255, 255, 255}
)

// Annotate draws every detection onto the JPEG frame. A box is red when it
// exactly matches one of the violation boxes, green otherwise; matching is
// deliberately by coordinate equality, not overlap, so callers must pass
// the same box values the classifier emitted. On decode failure the input
// is returned unchanged.
func Annotate(jpegData []byte, detections []models.Detection, violationBoxes []models.Box) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	flagged := make(map[models.Box]bool, len(violationBoxes))
	for _, b := range violationBoxes {
		flagged[b] = true
	}

	for _, det := range detections {
		c := colorOK
		if flagged[det.Box] {
			c = colorViolation
		}
		drawBox(rgba, det.Box, c, 2)
		label := fmt.Sprintf("%s %.2f", det.Label, det.Conf)
		drawLabel(rgba, det.Box.X1, det.Box.Y1-5, label)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// SaveSnapshot writes the annotated frame for one violating person under
// dir. Failures are logged and swallowed: snapshots are best-effort.
func SaveSnapshot(dir string, personKey int64, ts time.Time, jpegData []byte) {
	if len(jpegData) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warnf("Failed to create snapshot directory: %v", err)
		return
	}
	name := fmt.Sprintf("%s_p%d.jpg", ts.Format("20060102_150405"), personKey)
	if err := os.WriteFile(filepath.Join(dir, name), jpegData, 0644); err != nil {
		logger.Warnf("Failed to write snapshot %s: %v", name, err)
	}
}

// drawBox draws a rectangle outline, clipped to the image.
func drawBox(img *image.RGBA, b models.Box, c color.RGBA, thickness int) {
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		for x := b.X1; x <= b.X2 && x < bounds.Max.X; x++ {
			if x < 0 {
				continue
			}
			if y := b.Y1 + t; y >= 0 && y < bounds.Max.Y {
				img.Set(x, y, c)
			}
			if y := b.Y2 - t; y >= 0 && y < bounds.Max.Y {
				img.Set(x, y, c)
			}
		}
		for y := b.Y1; y <= b.Y2 && y < bounds.Max.Y; y++ {
			if y < 0 {
				continue
			}
			if x := b.X1 + t; x >= 0 && x < bounds.Max.X {
				img.Set(x, y, c)
			}
			if x := b.X2 - t; x >= 0 && x < bounds.Max.X {
				img.Set(x, y, c)
			}
		}
	}
}

// drawLabel draws the tag text over a dark background strip.
func drawLabel(img *image.RGBA, x, y int, label string) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, colorLabelBG)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorLabelText),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
