package chart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	drepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

const padding = 30

var (
	winBackground  = color.NRGBA{R: 8, G: 36, B: 20, A: 255}
	lossBackground = color.NRGBA{R: 44, G: 10, B: 12, A: 255}
	winLine        = color.NRGBA{R: 0, G: 230, B: 118, A: 255}
	lossLine       = color.NRGBA{R: 255, G: 82, B: 82, A: 255}
	gridLine       = color.NRGBA{R: 255, G: 255, B: 255, A: 28}
	openMarker     = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
	closeLevel     = color.NRGBA{R: 255, G: 214, B: 0, A: 200}
)

// RendererOption configures Renderer.
type RendererOption func(*Renderer)

// WithSize sets the image size in pixels.
func WithSize(width, height int) RendererOption {
	return func(r *Renderer) {
		if width > 2*padding && height > 2*padding {
			r.width, r.height = width, height
		}
	}
}

// WithDefaultSpan sets the history span used when a request carries none.
func WithDefaultSpan(d time.Duration) RendererOption {
	return func(r *Renderer) {
		if d > 0 {
			r.defaultSpan = d
		}
	}
}

// Renderer draws result charts from a HistoryProvider.
type Renderer struct {
	history     drepo.HistoryProvider
	logger      *logger.Logger
	width       int
	height      int
	defaultSpan time.Duration
}

func NewRenderer(history drepo.HistoryProvider, lgr *logger.Logger, opts ...RendererOption) *Renderer {
	r := &Renderer{
		history:     history,
		logger:      lgr,
		width:       600,
		height:      400,
		defaultSpan: time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns a PNG of the recent price path. Fewer than two history
// points yields ErrRendererUnavailable.
func (r *Renderer) Render(ctx context.Context, ticker string, req drepo.RenderRequest) ([]byte, error) {
	span := req.Span
	if span <= 0 {
		span = r.defaultSpan
	}

	points, err := r.history.History(ctx, ticker, span)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRendererUnavailable, err)
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: %d history points for %s", models.ErrRendererUnavailable, len(points), ticker)
	}

	img := r.draw(points, req)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) draw(points []models.PricePoint, req drepo.RenderRequest) image.Image {
	bg, fg := lossBackground, lossLine
	if req.Win {
		bg, fg = winBackground, winLine
	}

	lo, hi := priceRange(points, req.Price)
	p := plotter{w: r.width, h: r.height, lo: lo, hi: hi, n: len(points)}

	img := imaging.New(r.width, r.height, bg)
	for i := 1; i < 4; i++ {
		y := padding + i*(r.height-2*padding)/4
		hline(img, padding, r.width-padding, y, gridLine, 1)
	}

	layer := imaging.New(r.width, r.height, color.NRGBA{})
	for i := 1; i < len(points); i++ {
		x0, y0 := p.at(i-1, points[i-1].Price)
		x1, y1 := p.at(i, points[i].Price)
		line(layer, x0, y0, x1, y1, fg)
	}
	img = imaging.Overlay(img, imaging.Blur(layer, 3), image.Pt(0, 0), 0.7)
	img = imaging.Overlay(img, layer, image.Pt(0, 0), 1.0)

	if req.Price > 0 {
		_, y := p.at(0, req.Price)
		dashed(img, padding, r.width-padding, y, closeLevel)
	}

	x, y := p.at(0, points[0].Price)
	img = imaging.Paste(img, imaging.New(9, 9, openMarker), image.Pt(x-4, y-4))
	x, y = p.at(len(points)-1, points[len(points)-1].Price)
	img = imaging.Overlay(img, imaging.New(15, 15, fg), image.Pt(x-7, y-7), 0.35)
	img = imaging.Paste(img, imaging.New(9, 9, fg), image.Pt(x-4, y-4))
	return img
}

func priceRange(points []models.PricePoint, extra float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		lo = math.Min(lo, pt.Price)
		hi = math.Max(hi, pt.Price)
	}
	if extra > 0 {
		lo = math.Min(lo, extra)
		hi = math.Max(hi, extra)
	}
	if hi-lo < 1e-12 {
		lo, hi = lo-0.5, hi+0.5
	}
	pad := (hi - lo) * 0.08
	return lo - pad, hi + pad
}

type plotter struct {
	w, h   int
	lo, hi float64
	n      int
}

func (p plotter) at(i int, price float64) (int, int) {
	x := padding
	if p.n > 1 {
		x = padding + i*(p.w-2*padding)/(p.n-1)
	}
	frac := (price - p.lo) / (p.hi - p.lo)
	y := p.h - padding - int(math.Round(frac*float64(p.h-2*padding)))
	return x, y
}

// line draws a two pixel wide segment.
func line(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetNRGBA(x0, y0, c)
		img.SetNRGBA(x0, y0+1, c)
		img.SetNRGBA(x0+1, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func hline(img *image.NRGBA, x0, x1, y int, c color.NRGBA, step int) {
	for x := x0; x <= x1; x += step {
		img.Set(x, y, blend(img.NRGBAAt(x, y), c))
	}
}

func dashed(img *image.NRGBA, x0, x1, y int, c color.NRGBA) {
	for x := x0; x <= x1; x++ {
		if (x/6)%2 == 0 {
			img.Set(x, y, blend(img.NRGBAAt(x, y), c))
		}
	}
}

func blend(dst, src color.NRGBA) color.NRGBA {
	a := float64(src.A) / 255
	mix := func(d, s uint8) uint8 { return uint8(float64(d)*(1-a) + float64(s)*a) }
	return color.NRGBA{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 255}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
