package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	c := New()

	c.ObserveStep(1)
	c.ObserveStep(0)
	c.ObserveEpisode(3, 12.5, 1.04, 0.2, 0.01, 2*time.Second)
	c.ObserveEpisode(2, -1, 0.98, 0.1, 0.02, time.Second)

	tests := []struct {
		name string
		have float64
		want float64
	}{
		{"steps", testutil.ToFloat64(c.steps), 2},
		{"position", testutil.ToFloat64(c.position), 0},
		{"episodes", testutil.ToFloat64(c.episodes), 2},
		{"trades", testutil.ToFloat64(c.trades), 5},
		{"return", testutil.ToFloat64(c.episodeReturn), -1},
		{"profit", testutil.ToFloat64(c.profit), 0.98},
		{"exploration", testutil.ToFloat64(c.exploration), 0.1},
		{"loss", testutil.ToFloat64(c.loss), 0.02},
	}
	for _, test := range tests {
		if test.have != test.want {
			t.Errorf("%v: want(%v) have(%v)", test.name, test.want, test.have)
		}
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObserveEpisode(1, 1, 1, 1, 1, time.Second)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"btcrl_episodes_total 1",
		"btcrl_episode_duration_seconds_count 1"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metric %q not exposed", name)
		}
	}
}
