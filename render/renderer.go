// Package render turns contract sections into a single tall raster and
// slices that raster into fixed-size PDF pages.
package render

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// Logical layout, in pixels before oversampling.
const (
	marginPx         = 48
	titleSize        = 18
	bodySize         = 12
	sectionGapPx     = 24
	titleBodyGapPx   = 8
	DefaultWidthPx   = 794
	DefaultMaxHeight = 60000
)

type Options struct {
	// WidthPx is the logical raster width.
	WidthPx int
	// Oversampling multiplies every dimension for output fidelity.
	Oversampling int
	// MaxHeightPx caps the oversampled raster height.
	MaxHeightPx int
}

func (o Options) withDefaults() Options {
	if o.WidthPx <= 0 {
		o.WidthPx = DefaultWidthPx
	}
	if o.Oversampling <= 0 {
		o.Oversampling = 2
	}
	if o.MaxHeightPx <= 0 {
		o.MaxHeightPx = DefaultMaxHeight
	}
	return o
}

// Renderer rasterizes sections with the Go fonts. Safe for concurrent use;
// faces are created per call.
type Renderer struct {
	opts    Options
	regular *sfnt.Font
	bold    *sfnt.Font
}

func NewRenderer(opts Options) (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Renderer{opts: opts.withDefaults(), regular: regular, bold: bold}, nil
}

func (r *Renderer) Options() Options { return r.opts }

type line struct {
	text     string
	face     font.Face
	baseline int
}

// Render flattens sections, in order, into one image: each section's title
// in bold followed by its wrapped body. Malformed content yields a
// RenderError and no image.
func (r *Renderer) Render(ctx context.Context, sections []model.Section) (*image.Gray, error) {
	if len(sections) == 0 {
		return nil, &model.RenderError{Reason: "contract has no sections"}
	}
	for _, s := range sections {
		if strings.TrimSpace(s.ID) == "" {
			return nil, &model.RenderError{Reason: "section without id"}
		}
		if !utf8.ValidString(s.Title) || !utf8.ValidString(s.Body) {
			return nil, &model.RenderError{SectionID: s.ID, Reason: "invalid UTF-8"}
		}
	}

	scale := r.opts.Oversampling
	titleFace, err := r.face(r.bold, titleSize*scale)
	if err != nil {
		return nil, err
	}
	defer titleFace.Close()
	bodyFace, err := r.face(r.regular, bodySize*scale)
	if err != nil {
		return nil, err
	}
	defer bodyFace.Close()

	width := r.opts.WidthPx * scale
	margin := marginPx * scale
	textWidth := fixed.I(width - 2*margin)

	var lines []line
	y := margin
	for i, s := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			y += sectionGapPx * scale
		}
		if title := normalize(s.Title); title != "" {
			y = appendWrapped(&lines, titleFace, title, textWidth, y)
			y += titleBodyGapPx * scale
		}
		for _, para := range strings.Split(normalize(s.Body), "\n") {
			y = appendWrapped(&lines, bodyFace, para, textWidth, y)
		}
		if y+margin > r.opts.MaxHeightPx {
			return nil, &model.RenderError{
				SectionID: s.ID,
				Reason:    fmt.Sprintf("document exceeds %d px", r.opts.MaxHeightPx),
			}
		}
	}
	height := y + margin

	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for i, ln := range lines {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		d := font.Drawer{Dst: img, Src: image.Black, Face: ln.face, Dot: fixed.P(margin, ln.baseline)}
		d.DrawString(ln.text)
	}
	return img, nil
}

func (r *Renderer) face(f *sfnt.Font, size int) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, &model.RenderError{Reason: fmt.Sprintf("font face: %v", err)}
	}
	return face, nil
}

// normalize brings text to NFC and drops characters the layout can't place.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\t", "    ")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r >= ' ' {
			return r
		}
		return -1
	}, s)
}

// appendWrapped word-wraps text into lines no wider than limit and returns the
// y position below the last one. Empty text still takes one line.
func appendWrapped(lines *[]line, face font.Face, text string, limit fixed.Int26_6, y int) int {
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	height := m.Height.Ceil()

	for _, l := range wrap(face, text, limit) {
		*lines = append(*lines, line{text: l, face: face, baseline: y + ascent})
		y += height
	}
	return y
}

func wrap(face font.Face, text string, limit fixed.Int26_6) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		out     []string
		current string
	)
	for _, w := range words {
		candidate := w
		if current != "" {
			candidate = current + " " + w
		}
		if font.MeasureString(face, candidate) <= limit {
			current = candidate
			continue
		}
		if current != "" {
			out = append(out, current)
		}
		// A single word wider than the line is broken by rune.
		for font.MeasureString(face, w) > limit {
			cut := breakPoint(face, w, limit)
			out = append(out, w[:cut])
			w = w[cut:]
		}
		current = w
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// breakPoint returns the largest rune boundary at which s still fits, and at
// least one rune.
func breakPoint(face font.Face, s string, limit fixed.Int26_6) int {
	cut := 0
	for i := range s {
		if i > 0 && font.MeasureString(face, s[:i]) > limit {
			break
		}
		cut = i
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
