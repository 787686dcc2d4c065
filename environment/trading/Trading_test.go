package trading

import (
	"errors"
	"math"
	"testing"

	env "github.com/samuelfneumann/btcrl/environment"
)

func series(prices ...float64) ([][]float64, []float64) {
	frames := make([][]float64, len(prices))
	for i, p := range prices {
		frames[i] = []float64{p, float64(i)}
	}
	return frames, prices
}

func TestEpisodeTerminatesOnce(t *testing.T) {
	frames, prices := series(10, 11, 12, 13, 14)
	tr, err := New(Config{WindowSize: 2, FrameLen: 1}, frames, prices)
	if err != nil {
		t.Fatal(err)
	}

	first, err := tr.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !first.First() {
		t.Errorf("reset did not return first timestep")
	}
	if first.Observation.Len() != 4 {
		t.Errorf("observation length: want(4) have(%v)",
			first.Observation.Len())
	}

	for i := 1; i <= 3; i++ {
		step, isDone, err := tr.Step(Sell)
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
		if isDone != (i == 3) {
			t.Fatalf("step %v: done = %v", i, isDone)
		}
		if step.Last() != isDone {
			t.Errorf("step %v: last = %v, done = %v", i, step.Last(), isDone)
		}
		if step.Number != i {
			t.Errorf("step %v: number = %v", i, step.Number)
		}
	}

	if _, _, err := tr.Step(Sell); !errors.Is(err, env.ErrEpisodeDone) {
		t.Errorf("expected episode done error, have %v", err)
	}

	// A reset starts a fresh episode
	if _, err := tr.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, isDone, err := tr.Step(Buy); err != nil || isDone {
		t.Errorf("unexpected (%v, %v) after reset", isDone, err)
	}
}

func TestStepCount(t *testing.T) {
	tests := []struct {
		length, window, frameLen, steps int
	}{
		{5, 2, 1, 3},
		{10, 3, 2, 4},
		{10, 3, 7, 1},
		{4, 4, 1, 0},
		{7, 1, 3, 2},
	}

	for _, test := range tests {
		prices := make([]float64, test.length)
		for i := range prices {
			prices[i] = float64(i + 1)
		}
		frames, prices := series(prices...)
		tr, err := New(Config{WindowSize: test.window,
			FrameLen: test.frameLen}, frames, prices)
		if err != nil {
			t.Fatal(err)
		}
		tr.Reset()

		if test.steps == 0 {
			// The series is consumed by the first window, so the first
			// step already ends the episode
			if _, isDone, _ := tr.Step(Sell); !isDone {
				t.Errorf("%+v: expected immediate termination", test)
			}
			continue
		}

		steps := 0
		for {
			_, isDone, err := tr.Step(Buy)
			if err != nil {
				t.Fatal(err)
			}
			steps++
			if isDone {
				break
			}
		}
		if steps != test.steps {
			t.Errorf("%+v: want(%v) steps have(%v)", test, test.steps, steps)
		}
	}
}

func TestObservationWindow(t *testing.T) {
	frames, prices := series(1, 2, 3, 4, 5)
	tr, _ := New(Config{WindowSize: 2, FrameLen: 1}, frames, prices)

	step, _ := tr.Reset()
	want := []float64{1, 0, 2, 1}
	for i, v := range want {
		if step.Observation.AtVec(i) != v {
			t.Fatalf("reset observation: want(%v) have(%v)", want,
				step.State())
		}
	}

	step, _, _ = tr.Step(Sell)
	want = []float64{2, 1, 3, 2}
	for i, v := range want {
		if step.Observation.AtVec(i) != v {
			t.Fatalf("step observation: want(%v) have(%v)", want,
				step.State())
		}
	}
}

func TestRewardAndProfit(t *testing.T) {
	frames, prices := series(10, 10, 12, 15, 11, 20)
	c := Config{WindowSize: 2, FrameLen: 1, TradeFeeBid: 0.01,
		TradeFeeAsk: 0.005}
	tr, _ := New(c, frames, prices)
	tr.Reset()

	// tick 3: buy at 15 opens a long position, no reward
	step, _, _ := tr.Step(Buy)
	if step.Reward != 0 {
		t.Errorf("opening trade reward: want(0) have(%v)", step.Reward)
	}
	if step.Info[InfoPosition] != float64(Long) {
		t.Errorf("position after buy: want(Long) have(%v)",
			step.Info[InfoPosition])
	}

	// tick 4: holding, no reward
	step, _, _ = tr.Step(Buy)
	if step.Reward != 0 {
		t.Errorf("holding reward: want(0) have(%v)", step.Reward)
	}

	// tick 5: sell at 20 closes the long, reward 20 - 15
	step, isDone, _ := tr.Step(Sell)
	if step.Reward != 5 {
		t.Errorf("closing reward: want(5) have(%v)", step.Reward)
	}
	if isDone {
		t.Errorf("episode ended early")
	}

	wantProfit := (1 * (1 - 0.005) / 15) * (1 - 0.01) * 20
	if math.Abs(step.Info[InfoTotalProfit]-wantProfit) > 1e-12 {
		t.Errorf("profit: want(%v) have(%v)", wantProfit,
			step.Info[InfoTotalProfit])
	}
	if step.Info[InfoTotalReward] != 5 {
		t.Errorf("total reward: want(5) have(%v)", step.Info[InfoTotalReward])
	}
	if tr.History().NumTrades() != 2 {
		t.Errorf("trades: want(2) have(%v)", tr.History().NumTrades())
	}
}

func TestRewardDeterminism(t *testing.T) {
	frames, prices := series(5, 7, 6, 9, 8, 12, 10, 11, 13)
	actions := []int{Buy, Sell, Buy, Buy, Sell, Buy, Sell}

	run := func() ([]float64, float64) {
		tr, _ := New(Config{WindowSize: 2, FrameLen: 1, TradeFeeBid: 0.01,
			TradeFeeAsk: 0.005}, frames, prices)
		tr.Reset()
		var rewards []float64
		for _, a := range actions {
			step, isDone, err := tr.Step(a)
			if err != nil {
				t.Fatal(err)
			}
			rewards = append(rewards, step.Reward)
			if isDone {
				break
			}
		}
		return rewards, tr.TotalProfit()
	}

	r1, p1 := run()
	r2, p2 := run()
	if len(r1) != len(r2) || p1 != p2 {
		t.Fatalf("runs differ: (%v, %v) vs (%v, %v)", r1, p1, r2, p2)
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("reward %v differs: %v vs %v", i, r1[i], r2[i])
		}
	}
}

func TestStepErrors(t *testing.T) {
	frames, prices := series(1, 2, 3)
	tr, _ := New(Config{WindowSize: 1, FrameLen: 1}, frames, prices)

	if _, _, err := tr.Step(Buy); !errors.Is(err, env.ErrNotStarted) {
		t.Errorf("expected not started error, have %v", err)
	}

	tr.Reset()
	if _, _, err := tr.Step(2); !errors.Is(err, env.ErrInvalidAction) {
		t.Errorf("expected invalid action error, have %v", err)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	frames, prices := series(1, 2, 3)

	tests := []struct {
		name   string
		config Config
		frames [][]float64
		prices []float64
	}{
		{"window larger than series", Config{WindowSize: 4, FrameLen: 1},
			frames, prices},
		{"zero window", Config{WindowSize: 0, FrameLen: 1}, frames, prices},
		{"zero frame length", Config{WindowSize: 1, FrameLen: 0}, frames,
			prices},
		{"fee", Config{WindowSize: 1, FrameLen: 1, TradeFeeBid: 1}, frames,
			prices},
		{"length mismatch", Config{WindowSize: 1, FrameLen: 1}, frames[:2],
			prices},
		{"empty", Config{WindowSize: 1, FrameLen: 1}, nil, nil},
		{"ragged", Config{WindowSize: 1, FrameLen: 1},
			[][]float64{{1}, {1, 2}, {3}}, prices},
		{"non-positive price", Config{WindowSize: 1, FrameLen: 1}, frames,
			[]float64{1, 0, 3}},
	}

	for _, test := range tests {
		if _, err := New(test.config, test.frames, test.prices); !errors.Is(
			err, ErrConfig) {
			t.Errorf("%v: expected configuration error, have %v", test.name,
				err)
		}
	}
}

func TestSpecs(t *testing.T) {
	frames, prices := series(1, 2, 3)
	tr, _ := New(Config{WindowSize: 2, FrameLen: 1}, frames, prices)

	if n := tr.ActionSpec().NumActions(); n != 2 {
		t.Errorf("actions: want(2) have(%v)", n)
	}
	if n := tr.ObservationSpec().Size(); n != 4 {
		t.Errorf("observation size: want(4) have(%v)", n)
	}
}
