package render

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/btcrl/environment/trading"
)

func testHistory(t *testing.T) trading.History {
	t.Helper()
	prices := []float64{10, 11, 12, 11, 13, 12, 14}
	frames := make([][]float64, len(prices))
	for i := range frames {
		frames[i] = []float64{prices[i]}
	}
	e, err := trading.New(trading.Config{WindowSize: 2, FrameLen: 1}, frames,
		prices)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Reset(); err != nil {
		t.Fatal(err)
	}
	for done, action := false, trading.Buy; !done; action = 1 - action {
		if _, done, err = e.Step(action); err != nil {
			t.Fatal(err)
		}
	}
	return e.History()
}

func TestPlot(t *testing.T) {
	h := testHistory(t)
	img, err := Plot(h, 200, 100)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("want(200 x 100) have(%v x %v)", b.Dx(), b.Dy())
	}

	// The first trade is a buy, drawn in the Long colour
	first := h.Trades[1]
	if first.Position != trading.Long {
		t.Fatalf("want Long position have(%v)", first.Position)
	}
	xs := margin + float64(first.Tick)*(200-2*margin)/float64(len(h.Prices)-1)
	r, g, b, _ := img.At(int(xs), 100-int(margin)-int((h.Prices[first.Tick]-10)*
		(100-2*margin)/4)).RGBA()
	if g <= r || g <= b {
		t.Errorf("trade marker not drawn in the Long colour: (%v, %v, %v)",
			r>>8, g>>8, b>>8)
	}

	if _, err := Plot(h, 10, 10); err == nil {
		t.Error("expected error for small image")
	}
	if _, err := Plot(trading.History{Prices: []float64{1}}, 200, 100); err == nil {
		t.Error("expected error for single price")
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.png")
	if err := SavePNG(path, testHistory(t), 320, 240); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("want(320 x 240) have(%v x %v)", b.Dx(), b.Dy())
	}
}
