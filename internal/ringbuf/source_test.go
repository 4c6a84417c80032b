package ringbuf

import "testing"

func TestSumPerCPUNilMapIsZero(t *testing.T) {
	total, err := sumPerCPU(nil)
	if err != nil {
		t.Fatalf("sumPerCPU(nil): %v", err)
	}
	if total != 0 {
		t.Errorf("sumPerCPU(nil) = %d, want 0", total)
	}
}

func TestCountersZeroWithoutMaps(t *testing.T) {
	s := &Source{Name: "test"}
	c, err := s.Counters()
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if c != (Counters{}) {
		t.Errorf("Counters = %+v, want zero value", c)
	}
}
