// Package render draws the trade log of trading episodes
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
)

const margin = 20.0

var (
	background  = color.White
	priceColour = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	longColour  = color.RGBA{R: 0, G: 160, B: 60, A: 255}
	shortColour = color.RGBA{R: 200, G: 30, B: 30, A: 255}
)

// Plot draws the price series of an episode with the position held at
// each visited tick: green for Long and red for Short. Ticks at which
// a trade occurred are drawn larger.
func Plot(h trading.History, width, height int) (image.Image, error) {
	if width <= 2*margin || height <= 2*margin {
		return nil, fmt.Errorf("plot: image too small\n\twant(>%v)"+
			"\n\thave(%v x %v)", 2*margin, width, height)
	}
	if len(h.Prices) < 2 {
		return nil, fmt.Errorf("plot: at least two prices needed\n\thave(%v)",
			len(h.Prices))
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	lo, hi := floatutils.Min(h.Prices...), floatutils.Max(h.Prices...)
	if hi == lo {
		hi = lo + 1
	}
	x := func(tick int) float64 {
		return margin + float64(tick)*(float64(width)-2*margin)/
			float64(len(h.Prices)-1)
	}
	y := func(price float64) float64 {
		return float64(height) - margin -
			(price-lo)*(float64(height)-2*margin)/(hi-lo)
	}

	// Prices
	dc.MoveTo(x(0), y(h.Prices[0]))
	for tick := 1; tick < len(h.Prices); tick++ {
		dc.LineTo(x(tick), y(h.Prices[tick]))
	}
	dc.SetColor(priceColour)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	// Positions
	for _, t := range h.Trades {
		if t.Tick < 0 || t.Tick >= len(h.Prices) {
			return nil, fmt.Errorf("plot: trade tick out of range\n\t"+
				"want([0, %v))\n\thave(%v)", len(h.Prices), t.Tick)
		}
		radius := 2.0
		if t.Traded {
			radius = 4.0
		}
		dc.DrawCircle(x(t.Tick), y(h.Prices[t.Tick]), radius)
		if t.Position == trading.Long {
			dc.SetColor(longColour)
		} else {
			dc.SetColor(shortColour)
		}
		dc.Fill()
	}

	return dc.Image(), nil
}

// SavePNG draws the trade log of an episode to a PNG file
func SavePNG(path string, h trading.History, width, height int) error {
	img, err := Plot(h, width, height)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("savepng: %v", err)
	}
	return nil
}
