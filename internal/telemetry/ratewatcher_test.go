package telemetry

import "testing"

func TestRateWatcherFirstTickIsZero(t *testing.T) {
	w := NewRateWatcher("handled", "evt", func() (uint64, error) { return 100, nil })
	rate, err := w.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rate != 0 {
		t.Errorf("first Tick rate = %f, want 0", rate)
	}
}

func TestRateWatcherComputesDelta(t *testing.T) {
	var sum uint64 = 1000
	w := NewRateWatcher("handled", "evt", func() (uint64, error) { return sum, nil })

	if _, err := w.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	sum = 1500
	rate, err := w.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rate <= 0 {
		t.Errorf("rate = %f, want > 0 after counter increased", rate)
	}
}

func TestRateWatcherGuardsAgainstCounterReset(t *testing.T) {
	var sum uint64 = 1000
	w := NewRateWatcher("handled", "evt", func() (uint64, error) { return sum, nil })
	if _, err := w.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	sum = 10 // counter went backwards, e.g. process restart
	rate, err := w.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rate != 0 {
		t.Errorf("rate = %f, want 0 when counter decreases", rate)
	}
}

func TestFormatRateSuffixes(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{500, "500.00 pkt/s"},
		{1500, "1.50 Kpkt/s"},
		{2_500_000, "2.50 Mpkt/s"},
		{3_000_000_000, "3.00 Gpkt/s"},
	}
	for _, c := range cases {
		if got := FormatRate(c.rate, "pkt"); got != c.want {
			t.Errorf("FormatRate(%v) = %q, want %q", c.rate, got, c.want)
		}
	}
}
