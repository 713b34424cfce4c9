package tracker

import (
	"math"
	"sync"
	"testing"
)

func TestObserveComputesMeanReference(t *testing.T) {
	tr := New(5)
	prices := []float64{100, 102, 98, 101}
	for _, p := range prices {
		tr.Observe("DOGE", p)
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	want := sum / float64(len(prices))

	q := tr.Snapshot("DOGE")
	if math.Abs(q.Reference-want) > 1e-9 {
		t.Fatalf("expected reference %.4f, got %.4f", want, q.Reference)
	}
	wantDev := (101 - want) / want * 100
	if math.Abs(q.Deviation-wantDev) > 1e-9 {
		t.Fatalf("expected deviation %.4f, got %.4f", wantDev, q.Deviation)
	}
}

func TestWindowEvictsOldestFirst(t *testing.T) {
	tr := New(3)
	for _, p := range []float64{1, 2, 3, 4, 5} {
		tr.Observe("PEPE", p)
	}
	if got := tr.HistoryLen("PEPE"); got != 3 {
		t.Fatalf("expected window of 3, got %d", got)
	}
	// Remaining window is {3,4,5}; its mean is 4.
	q := tr.Snapshot("PEPE")
	if math.Abs(q.Reference-4) > 1e-9 {
		t.Fatalf("expected reference 4 after eviction, got %.4f", q.Reference)
	}
}

func TestObserveTracksStepChange(t *testing.T) {
	tr := New(10)
	tr.Observe("WIF", 2.0)
	q := tr.Snapshot("WIF")
	if q.Change != 0 {
		t.Fatalf("expected zero change for first sample, got %.4f", q.Change)
	}
	tr.Observe("WIF", 2.1)
	q = tr.Snapshot("WIF")
	if math.Abs(q.Change-5.0) > 1e-9 {
		t.Fatalf("expected +5%% change, got %.4f", q.Change)
	}
}

func TestObserveIgnoresInvalidSamples(t *testing.T) {
	tr := New(5)
	tr.Observe("", 1)
	tr.Observe("DOGE", 0)
	tr.Observe("DOGE", -3)
	if tr.HistoryLen("DOGE") != 0 {
		t.Fatalf("invalid samples should not be recorded")
	}
	if tr.Price("DOGE") != 0 {
		t.Fatalf("expected zero price for unseen symbol")
	}
}

func TestConstantPriceZeroDeviation(t *testing.T) {
	tr := New(30)
	for i := 0; i < 40; i++ {
		tr.Observe("BONK", 0.5)
	}
	q := tr.Snapshot("BONK")
	if q.Deviation != 0 {
		t.Fatalf("constant stream should have zero deviation, got %.6f", q.Deviation)
	}
	if math.Abs(q.Reference-0.5) > 1e-12 {
		t.Fatalf("reference should equal constant price, got %.6f", q.Reference)
	}
}

func TestConcurrentObserversAndReaders(t *testing.T) {
	tr := New(30)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(offset float64) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tr.Observe("DOGE", 1+offset+float64(i)*0.001)
				_ = tr.Snapshot("DOGE")
				_ = tr.All()
			}
		}(float64(g) * 0.01)
	}
	wg.Wait()

	if got := tr.HistoryLen("DOGE"); got != 30 {
		t.Fatalf("window invariant violated: %d", got)
	}
	q := tr.Snapshot("DOGE")
	if q.Reference <= 0 || q.Price <= 0 {
		t.Fatalf("expected positive state after concurrent writes: %+v", q)
	}
}
