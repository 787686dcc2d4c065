package experiment

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/experiment/checkpointer"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
)

// fakeAgent alternates between buying and selling
type fakeAgent struct {
	predictions int
	learned     int
	terminals   int
	episodes    []int
	saved       []string
}

func (f *fakeAgent) Predict(state []float64) (int, error) {
	f.predictions++
	if f.predictions%2 == 1 {
		return trading.Buy, nil
	}
	return trading.Sell, nil
}

func (f *fakeAgent) Learn(prev []float64, action int, next []float64,
	reward float64, terminal bool) error {
	f.learned++
	if terminal {
		f.terminals++
	}
	return nil
}

func (f *fakeAgent) LearnEpisode(episode int) error {
	f.episodes = append(f.episodes, episode)
	return nil
}

func (f *fakeAgent) Save(path string) error {
	f.saved = append(f.saved, path)
	return nil
}

func (f *fakeAgent) Exploration() float64 { return 0.5 }
func (f *fakeAgent) LastLoss() float64    { return 0.1 }

func newTestEnv(t *testing.T) *trading.Trading {
	t.Helper()
	prices := []float64{10, 11, 12, 13, 14, 15}
	frames := make([][]float64, len(prices))
	for i, p := range prices {
		frames[i] = []float64{p, float64(i)}
	}
	e, err := trading.New(trading.Config{WindowSize: 2, FrameLen: 1}, frames,
		prices)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunEpisode(t *testing.T) {
	a := &fakeAgent{}
	ret := tracker.NewReturn(filepath.Join(t.TempDir(), "return.bin"))
	o, err := NewOnline(newTestEnv(t), a, Config{Episodes: 1}, nil, nil,
		[]tracker.Tracker{ret}, nil)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := o.RunEpisode(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Window 2 over 6 prices with frame length 1 gives 4 steps
	if summary.Steps != 4 || a.learned != 4 || a.predictions != 4 {
		t.Errorf("steps: want(4) have(%v, %v, %v)", summary.Steps, a.learned,
			a.predictions)
	}
	if a.terminals != 1 {
		t.Errorf("want(1) terminal transition have(%v)", a.terminals)
	}
	if len(a.episodes) != 1 || a.episodes[0] != 1 {
		t.Errorf("episodes are numbered from 1: %v", a.episodes)
	}

	// Buy at tick 3, sell at 4 for a reward of 1, buy at 5, and sell
	// at the end of the series at the same price
	if summary.Trades != 4 {
		t.Errorf("trades: want(4) have(%v)", summary.Trades)
	}
	if summary.Return != 1 {
		t.Errorf("return: want(1) have(%v)", summary.Return)
	}
	if summary.Exploration != 0.5 || summary.Loss != 0.1 {
		t.Errorf("agent progress not reported: %+v", summary)
	}
	if returns := ret.Returns(); len(returns) != 1 || returns[0] != 1 {
		t.Errorf("tracked returns: %v", returns)
	}
	if err := o.Save(); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	a := &fakeAgent{}
	check, err := checkpointer.NewNEpisode(2, a, checkpointer.Fixed("agent.ckpt"))
	if err != nil {
		t.Fatal(err)
	}

	var progress bytes.Buffer
	o, err := NewOnline(newTestEnv(t), a, Config{Episodes: 5, Progress: true},
		nil, &progress, nil, []checkpointer.Checkpointer{check})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if o.Episode() != 5 {
		t.Errorf("episodes: want(5) have(%v)", o.Episode())
	}
	if len(a.saved) != 2 {
		t.Errorf("checkpoints: want(2) have(%v)", len(a.saved))
	}
	if !strings.Contains(progress.String(), "100.00%") {
		t.Errorf("progress bar not completed: %q", progress.String())
	}
}

// resumedAgent is a fakeAgent restored after completing episodes
type resumedAgent struct {
	fakeAgent
	episode int
}

func (r *resumedAgent) Episode() int { return r.episode }

func TestRunResumed(t *testing.T) {
	a := &resumedAgent{episode: 3}
	check, err := checkpointer.NewNEpisode(2, a, checkpointer.Fixed("agent.ckpt"))
	if err != nil {
		t.Fatal(err)
	}

	var progress bytes.Buffer
	o, err := NewOnline(newTestEnv(t), a, Config{Episodes: 5, Progress: true},
		nil, &progress, nil, []checkpointer.Checkpointer{check})
	if err != nil {
		t.Fatal(err)
	}
	if o.Episode() != 3 {
		t.Fatalf("episode: want(3) have(%v)", o.Episode())
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(a.episodes) != 2 || a.episodes[0] != 4 || a.episodes[1] != 5 {
		t.Errorf("episodes: want([4 5]) have(%v)", a.episodes)
	}
	if len(a.saved) != 1 {
		t.Errorf("checkpoints: want(1) have(%v)", len(a.saved))
	}
	if !strings.Contains(progress.String(), "100.00%") {
		t.Errorf("progress bar not completed: %q", progress.String())
	}
}

func TestRunCancelled(t *testing.T) {
	a := &fakeAgent{}
	o, err := NewOnline(newTestEnv(t), a, Config{Episodes: 5}, nil, nil, nil,
		nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled have(%v)", err)
	}
	if o.Episode() != 0 || a.predictions != 0 {
		t.Error("episode run after cancellation")
	}
}

func TestNewOnlineInvalid(t *testing.T) {
	if _, err := NewOnline(newTestEnv(t), &fakeAgent{}, Config{}, nil, nil,
		nil, nil); err == nil {
		t.Error("expected error for zero episodes")
	}
}
