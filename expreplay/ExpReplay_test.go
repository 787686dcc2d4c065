package expreplay

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/samuelfneumann/btcrl/timestep"
)

func transition(i, features int) timestep.Transition {
	state := make([]float64, features)
	next := make([]float64, features)
	for j := range state {
		state[j] = float64(i)
		next[j] = float64(i) + 0.5
	}
	return timestep.Transition{
		State:     state,
		Action:    i % 2,
		Reward:    float64(i),
		NextState: next,
		Terminal:  i%3 == 0,
	}
}

func TestCircularOverwrite(t *testing.T) {
	m, err := New(3, 2, 11)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 5; i++ {
		if err := m.Add(transition(i, 2)); err != nil {
			t.Fatalf("add %v: %v", i, err)
		}
	}

	if m.Len() != 3 {
		t.Errorf("len: want(3) have(%v)", m.Len())
	}
	if m.Cursor() != 5%3 {
		t.Errorf("cursor: want(%v) have(%v)", 5%3, m.Cursor())
	}

	seen := map[float64]bool{}
	for i := 0; i < 100; i++ {
		batch, err := m.Sample(3)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range batch.Rewards {
			if r < 3 || r > 5 {
				t.Fatalf("sampled overwritten transition with reward %v", r)
			}
			seen[r] = true
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected all of T3, T4, T5 to be sampled, have %v", seen)
	}
}

func TestSampleValidity(t *testing.T) {
	const features = 4
	m, err := New(10, features, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 7; i++ {
		if err := m.Add(transition(i, features)); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := m.Sample(5)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Size() != 5 {
		t.Fatalf("batch size: want(5) have(%v)", batch.Size())
	}
	if len(batch.States) != 5*features || len(batch.NextStates) != 5*features {
		t.Fatalf("invalid state batch lengths %v, %v", len(batch.States),
			len(batch.NextStates))
	}

	// Every row must be a stored transition and fields must be aligned
	for i := 0; i < batch.Size(); i++ {
		want := transition(int(batch.Rewards[i]), features)
		for j := 0; j < features; j++ {
			if batch.States[i*features+j] != want.State[j] {
				t.Errorf("row %v: state misaligned with reward", i)
			}
			if batch.NextStates[i*features+j] != want.NextState[j] {
				t.Errorf("row %v: next state misaligned with reward", i)
			}
		}
		if batch.Actions[i] != want.Action {
			t.Errorf("row %v: action misaligned with reward", i)
		}
		if batch.Terminals[i] != want.Terminal {
			t.Errorf("row %v: terminal misaligned with reward", i)
		}
	}
}

func TestSampleErrors(t *testing.T) {
	m, err := New(4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Sample(1); !IsEmptyBuffer(err) ||
		!errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("expected empty buffer error, have %v", err)
	}

	m.Add(transition(1, 1))
	m.Add(transition(2, 1))
	if _, err := m.Sample(3); !IsInsufficientSamples(err) ||
		!errors.Is(err, ErrInsufficientSamples) {
		t.Errorf("expected insufficient samples error, have %v", err)
	}
	if _, err := m.Sample(2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := m.Add(transition(3, 2)); err == nil {
		t.Errorf("expected feature size error")
	}
	if m.Len() != 2 {
		t.Errorf("failed add changed size to %v", m.Len())
	}
}

func TestAddCopiesState(t *testing.T) {
	m, _ := New(2, 2, 0)
	tr := transition(1, 2)
	m.Add(tr)
	tr.State[0] = 100

	batch, _ := m.Sample(1)
	if batch.States[0] != 1 {
		t.Errorf("memory aliases caller state: have(%v)", batch.States[0])
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(0, 1, 0); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New(1, 0, 0); err == nil {
		t.Error("expected error for zero features")
	}
}

func TestGob(t *testing.T) {
	m, _ := New(3, 2, 5)
	for i := 1; i <= 4; i++ {
		m.Add(transition(i, 2))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		t.Fatal(err)
	}

	restored, _ := New(1, 1, 5)
	if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
		t.Fatal(err)
	}

	if restored.Len() != m.Len() || restored.Cursor() != m.Cursor() ||
		restored.Capacity() != m.Capacity() {
		t.Fatalf("restored %v, want %v", restored, m)
	}

	// The next write must land on the same slot in both buffers
	m.Add(transition(9, 2))
	restored.Add(transition(9, 2))
	for i := 0; i < 50; i++ {
		batch, _ := restored.Sample(3)
		for _, r := range batch.Rewards {
			if r == 1 || r == 2 {
				t.Fatalf("restored buffer sampled overwritten reward %v", r)
			}
		}
	}
}

func BenchmarkAdd(b *testing.B) {
	m, _ := New(10_000, 64, 0)
	tr := transition(1, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Add(tr)
	}
}

func BenchmarkSample(b *testing.B) {
	m, _ := New(10_000, 64, 0)
	for i := 0; i < 10_000; i++ {
		m.Add(transition(i, 64))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Sample(32)
	}
}
