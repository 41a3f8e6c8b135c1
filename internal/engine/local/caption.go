package local

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"clipforge/internal/animation"
)

// Caption card styling.
const (
	captionFontSize   = 52.0
	captionLineHeight = 1.3
	cardPaddingX      = 40
	cardPaddingY      = 30
	cardRadius        = 20
	cardMaxWidth      = 0.9
	outerPadding      = 40
	shadowOffset      = 2
	shadowBlurSigma   = 2.0
)

var (
	cardFill    = color.NRGBA{A: 217} // black at 0.85
	shadowFill  = color.NRGBA{A: 204} // black at 0.8
	captionFill = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

var (
	fontOnce sync.Once
	boldFont *opentype.Font
	fontErr  error
)

// newCaptionFace returns a fresh face; faces keep internal buffers and must
// not be shared between goroutines.
func newCaptionFace() (font.Face, error) {
	fontOnce.Do(func() {
		boldFont, fontErr = opentype.Parse(gobold.TTF)
	})
	if fontErr != nil {
		return nil, fontErr
	}
	return opentype.NewFace(boldFont, &opentype.FaceOptions{
		Size:    captionFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// renderCard draws the caption text on its rounded, translucent card sized
// for a canvas canvasWidth pixels wide.
func renderCard(face font.Face, text string, canvasWidth int) *image.NRGBA {
	maxCard := int(float64(canvasWidth) * cardMaxWidth)
	if limit := canvasWidth - 2*outerPadding; limit < maxCard {
		maxCard = limit
	}
	maxText := maxCard - 2*cardPaddingX
	if maxText < int(captionFontSize) {
		maxText = int(captionFontSize)
	}

	lines := wrapText(face, text, maxText)
	lineHeight := int(math.Ceil(captionFontSize * captionLineHeight))

	textWidth := 0
	for _, l := range lines {
		if w := font.MeasureString(face, l).Ceil(); w > textWidth {
			textWidth = w
		}
	}

	w := textWidth + 2*cardPaddingX
	h := len(lines)*lineHeight + 2*cardPaddingY
	card := image.NewNRGBA(image.Rect(0, 0, w, h))
	fillRoundedRect(card, cardRadius, cardFill)

	shadow := image.NewNRGBA(card.Bounds())
	drawLines(shadow, face, lines, lineHeight, shadowFill, shadowOffset)
	card = imaging.Overlay(card, imaging.Blur(shadow, shadowBlurSigma), image.Pt(0, 0), 1)

	drawLines(card, face, lines, lineHeight, captionFill, 0)
	return card
}

// drawLines centers each line horizontally inside dst.
func drawLines(dst draw.Image, face font.Face, lines []string, lineHeight int, c color.Color, offset int) {
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	glyphHeight := ascent + m.Descent.Ceil()
	width := dst.Bounds().Dx()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	for i, l := range lines {
		lw := font.MeasureString(face, l).Ceil()
		x := (width-lw)/2 + offset
		y := cardPaddingY + i*lineHeight + (lineHeight-glyphHeight)/2 + ascent + offset
		d.Dot = fixed.P(x, y)
		d.DrawString(l)
	}
}

// wrapText breaks text into lines no wider than maxWidth. Explicit newlines
// are kept and words wider than a line are split between runes.
func wrapText(face font.Face, text string, maxWidth int) []string {
	limit := fixed.I(maxWidth)
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur string
		for _, word := range strings.Fields(para) {
			for font.MeasureString(face, word) > limit && utf8.RuneCountInString(word) > 1 {
				if cur != "" {
					lines = append(lines, cur)
					cur = ""
				}
				head, tail := splitToWidth(face, word, limit)
				lines = append(lines, head)
				word = tail
			}
			candidate := word
			if cur != "" {
				candidate = cur + " " + word
			}
			if cur != "" && font.MeasureString(face, candidate) > limit {
				lines = append(lines, cur)
				cur = word
				continue
			}
			cur = candidate
		}
		if cur != "" {
			lines = append(lines, cur)
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func splitToWidth(face font.Face, word string, limit fixed.Int26_6) (string, string) {
	end := 0
	for i, r := range word {
		next := i + utf8.RuneLen(r)
		if end > 0 && font.MeasureString(face, word[:next]) > limit {
			break
		}
		end = next
	}
	return word[:end], word[end:]
}

// fillRoundedRect paints the whole of img with c, leaving the corners
// outside radius transparent. Corner edges get one pixel of coverage
// falloff.
func fillRoundedRect(img *image.NRGBA, radius int, c color.NRGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := float64(radius)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cov := 1.0
			cx, cy := -1.0, -1.0
			switch {
			case x < radius:
				cx = r
			case x >= w-radius:
				cx = float64(w) - r
			}
			switch {
			case y < radius:
				cy = r
			case y >= h-radius:
				cy = float64(h) - r
			}
			if cx >= 0 && cy >= 0 {
				dist := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
				cov = math.Max(0, math.Min(1, r-dist+0.5))
			}
			if cov == 0 {
				continue
			}
			px := c
			px.A = uint8(math.Round(float64(c.A) * cov))
			img.SetNRGBA(b.Min.X+x, b.Min.Y+y, px)
		}
	}
}

// overlay produces fixed-size RGBA frames holding the animated caption
// card centered on a transparent background.
type overlay struct {
	card          *image.NRGBA
	width, height int
}

func newOverlay(card *image.NRGBA, canvasW, canvasH int) *overlay {
	w, h := even(card.Bounds().Dx()), even(card.Bounds().Dy())
	if w > canvasW {
		w = canvasW
	}
	if h > canvasH {
		h = canvasH
	}
	return &overlay{card: card, width: w, height: h}
}

func (o *overlay) frame(p animation.Params) *image.NRGBA {
	dst := imaging.New(o.width, o.height, color.NRGBA{})
	if p.Opacity <= 0 || p.Scale <= 0 {
		return dst
	}
	cb := o.card.Bounds()
	sw := int(math.Round(float64(cb.Dx()) * p.Scale))
	sh := int(math.Round(float64(cb.Dy()) * p.Scale))
	if sw < 1 || sh < 1 {
		return dst
	}
	src := o.card
	if sw != cb.Dx() || sh != cb.Dy() {
		src = imaging.Resize(o.card, sw, sh, imaging.Linear)
	}
	pos := image.Pt((o.width-sw)/2, (o.height-sh)/2)
	return imaging.Overlay(dst, src, pos, p.Opacity)
}

func even(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// OverlayFrame renders the caption overlay for one frame of a composition
// canvasWidth pixels wide.
func OverlayFrame(caption string, canvasWidth, canvasHeight, frame, durationInFrames int) (*image.NRGBA, error) {
	face, err := newCaptionFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()
	ov := newOverlay(renderCard(face, caption, canvasWidth), canvasWidth, canvasHeight)
	return ov.frame(animation.Evaluate(frame, durationInFrames)), nil
}
