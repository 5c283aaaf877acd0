package render

import (
	"fmt"
	"math"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

// pageCountTolerance absorbs float error when the scaled height is a whole
// number of pages.
const pageCountTolerance = 1e-9

// PageSize is an output page in PDF units (mm by default).
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var A4 = PageSize{Width: 210, Height: 297}

// Fit selects how the scale ratio is chosen.
type Fit string

const (
	// FitPage scales by min(pw/W, ph/H).
	FitPage Fit = "page"
	// FitWidth scales the raster to the page width and lets it run over
	// as many pages as needed.
	FitWidth Fit = "width"
)

func ParseFit(s string) (Fit, error) {
	switch Fit(s) {
	case "", FitPage:
		return FitPage, nil
	case FitWidth:
		return FitWidth, nil
	}
	return "", fmt.Errorf("unknown fit %q", s)
}

// Slice is the vertical band [Top, Bottom) of the scaled image shown on one
// page. The image is drawn at y = -Top on that page.
type Slice struct {
	Index  int     `json:"index"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

func (s Slice) Height() float64 { return s.Bottom - s.Top }

// Layout is the pagination plan for one raster.
type Layout struct {
	Page         PageSize `json:"page"`
	SourceWidth  int      `json:"source_width"`
	SourceHeight int      `json:"source_height"`
	Ratio        float64  `json:"ratio"`
	ScaledWidth  float64  `json:"scaled_width"`
	ScaledHeight float64  `json:"scaled_height"`
	// X centres the scaled image horizontally.
	X      float64 `json:"x"`
	Slices []Slice `json:"slices"`
}

func (l *Layout) PageCount() int { return len(l.Slices) }

// Paginate plans how a w×h raster is cut into pages. One ratio is computed
// and used for every page; consecutive slices share their boundary, the
// first starts at 0 and the last ends at ScaledHeight.
func Paginate(w, h int, page PageSize, fit Fit) (*Layout, error) {
	if w <= 0 || h <= 0 {
		return nil, &model.RenderError{Reason: fmt.Sprintf("invalid raster size %dx%d", w, h)}
	}
	if page.Width <= 0 || page.Height <= 0 {
		return nil, &model.RenderError{Reason: fmt.Sprintf("invalid page size %gx%g", page.Width, page.Height)}
	}

	W, H := float64(w), float64(h)
	var ratio float64
	switch fit {
	case FitPage, "":
		ratio = min(page.Width/W, page.Height/H)
	case FitWidth:
		ratio = page.Width / W
	default:
		return nil, &model.RenderError{Reason: fmt.Sprintf("unknown fit %q", fit)}
	}

	l := &Layout{
		Page:         page,
		SourceWidth:  w,
		SourceHeight: h,
		Ratio:        ratio,
		ScaledWidth:  W * ratio,
		ScaledHeight: H * ratio,
	}
	l.X = (page.Width - l.ScaledWidth) / 2

	n := int(math.Ceil(l.ScaledHeight/page.Height - pageCountTolerance))
	if n < 1 {
		n = 1
	}
	l.Slices = make([]Slice, n)
	for p := 0; p < n; p++ {
		top := float64(p) * page.Height
		bottom := min(float64(p+1)*page.Height, l.ScaledHeight)
		if p == n-1 {
			bottom = l.ScaledHeight
		}
		l.Slices[p] = Slice{Index: p, Top: top, Bottom: bottom}
	}
	return l, nil
}
