package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestManualProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewManualProgressBar(&buf, 10, 4)

	p.Increment()
	p.SetStatus("episode 1")
	if err := p.Display(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "25.00%") {
		t.Errorf("want 25.00%% in %q", out)
	}
	if !strings.Contains(out, "episode 1") {
		t.Errorf("want status in %q", out)
	}
	if n := strings.Count(out, "█"); n != 3 {
		t.Errorf("want(3) filled cells have(%v)", n)
	}

	// Progress saturates at 100%
	for i := 0; i < 10; i++ {
		p.Increment()
	}
	if p.Progress() != 1 {
		t.Errorf("want(1) have(%v)", p.Progress())
	}
	if n := strings.Count(p.String(), "█"); n != 10 {
		t.Errorf("want(10) filled cells have(%v)", n)
	}
}
