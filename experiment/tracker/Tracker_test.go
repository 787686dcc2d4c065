package tracker

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/metrics"
	"github.com/samuelfneumann/btcrl/store"
	ts "github.com/samuelfneumann/btcrl/timestep"
)

// episode returns the TimeSteps of an episode with the given rewards
// on each step after the first
func episode(rewards ...float64) []ts.TimeStep {
	steps := []ts.TimeStep{ts.New(ts.First, 0, nil, 0, nil)}
	for i, r := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		info := map[string]float64{trading.InfoPosition: float64(i % 2)}
		steps = append(steps, ts.New(stepType, r, nil, i+1, info))
	}
	return steps
}

func TestReturn(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "return.bin")
	r := NewReturn(filename)

	for _, ep := range [][]float64{{1, 2, 3}, {-1, 0}, {4}} {
		for _, step := range episode(ep...) {
			r.Track(step)
		}
	}

	// Unfinished episodes are not saved
	for _, step := range episode(100, 100)[:2] {
		r.Track(step)
	}

	want := []float64{6, -1, 4}
	have := r.Returns()
	if len(have) != len(want) {
		t.Fatalf("want(%v) have(%v)", want, have)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("episode %v: want(%v) have(%v)", i, want[i], have[i])
		}
	}

	mean, std := r.Stats()
	if math.Abs(mean-3) > 1e-12 {
		t.Errorf("mean: want(3) have(%v)", mean)
	}
	if math.Abs(std-math.Sqrt(13)) > 1e-12 {
		t.Errorf("std: want(%v) have(%v)", math.Sqrt(13), std)
	}

	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != len(want) {
		t.Errorf("loaded: want(%v) have(%v)", want, data)
	}
}

func TestReturnNonSequential(t *testing.T) {
	r := NewReturn(filepath.Join(t.TempDir(), "return.bin"))
	steps := episode(1, 2, 3)
	r.Track(steps[0])
	r.Track(steps[2])
	if err := r.Save(); err == nil {
		t.Error("expected error for non-sequential timesteps")
	}
}

func TestEpisodeLength(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "length.bin")
	e := NewEpisodeLength(filename)
	for _, ep := range [][]float64{{1, 2, 3}, {0}} {
		for _, step := range episode(ep...) {
			e.Track(step)
		}
	}
	if err := e.Save(); err != nil {
		t.Fatal(err)
	}

	lengths, err := LoadLengths(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(lengths) != 2 || lengths[0] != 3 || lengths[1] != 1 {
		t.Errorf("want([3 1]) have(%v)", lengths)
	}
	if m := e.Mean(); m != 2 {
		t.Errorf("mean: want(2) have(%v)", m)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(store.Config{
		Path: filepath.Join(t.TempDir(), "runs.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	runID, err := s.CreateRun(ctx, "test", nil)
	if err != nil {
		t.Fatal(err)
	}

	var tracker EpisodeTracker = NewStore(ctx, s, runID)
	for n := 1; n <= 2; n++ {
		err := tracker.TrackEpisode(Episode{Number: n, Steps: n * 10,
			Return: 1.5, Duration: time.Second})
		if err != nil {
			t.Fatal(err)
		}
	}

	episodes, err := s.Episodes(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 2 || episodes[1].Steps != 20 {
		t.Errorf("stored episodes: %+v", episodes)
	}
}

func TestMetrics(t *testing.T) {
	c := metrics.New()
	var tracker EpisodeTracker = NewMetrics(c)

	for _, step := range episode(1, 2) {
		tracker.Track(step)
	}
	if err := tracker.TrackEpisode(Episode{Number: 1, Trades: 2}); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Save(); err != nil {
		t.Fatal(err)
	}
}
