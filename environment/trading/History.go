package trading

// Trade is a single entry of the trade log
type Trade struct {
	Tick     int
	Position Position

	// Traded is true if the position changed at this tick
	Traded bool
}

// History is the trade log of an episode: the position held at each
// visited tick along with the full price series.
type History struct {
	Prices []float64
	Trades []Trade
}

func (h *History) record(tick int, p Position, traded bool) {
	h.Trades = append(h.Trades, Trade{Tick: tick, Position: p, Traded: traded})
}

// NumTrades returns the number of position changes in the episode
func (h History) NumTrades() int {
	n := 0
	for _, t := range h.Trades {
		if t.Traded {
			n++
		}
	}
	return n
}
