package metrics

import "testing"

func TestReservoir_PercentilesOnSmallSet(t *testing.T) {
	r := NewReservoir()
	for _, v := range []int64{10, 20, 30, 40, 50} {
		r.Add(v)
	}

	p50, p95, p99 := r.Percentiles()
	if p50 != 30 {
		t.Errorf("expected P50=30, got %v", p50)
	}
	if p95 <= 40 || p95 > 50 {
		t.Errorf("expected P95 between 40 and 50, got %v", p95)
	}
	if p99 <= 40 || p99 > 50 {
		t.Errorf("expected P99 between 40 and 50, got %v", p99)
	}
}

func TestReservoir_SingleSample(t *testing.T) {
	r := NewReservoir()
	r.Add(42)
	p50, p95, p99 := r.Percentiles()
	if p50 != 42 || p95 != 42 || p99 != 42 {
		t.Errorf("expected all percentiles to equal the single sample, got %v %v %v", p50, p95, p99)
	}
}

func TestReservoir_OverflowDropsOldest(t *testing.T) {
	r := NewReservoir()
	for i := 0; i < ReservoirCapacity+10; i++ {
		r.Add(int64(i))
	}
	if r.Len() != ReservoirCapacity {
		t.Fatalf("expected reservoir to cap at %d, got %d", ReservoirCapacity, r.Len())
	}
	p50, _, _ := r.Percentiles()
	// the oldest 10 samples (0..9) should have been evicted
	if p50 < 10 {
		t.Errorf("expected evicted oldest samples to shift P50 upward, got %v", p50)
	}
}

func TestReservoir_Empty(t *testing.T) {
	r := NewReservoir()
	p50, p95, p99 := r.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("expected zero percentiles on an empty reservoir, got %v %v %v", p50, p95, p99)
	}
	if r.Mean() != 0 {
		t.Errorf("expected zero mean on an empty reservoir, got %v", r.Mean())
	}
}

func TestReservoir_Mean(t *testing.T) {
	r := NewReservoir()
	for _, v := range []int64{10, 20, 30} {
		r.Add(v)
	}
	if mean := r.Mean(); mean != 20 {
		t.Errorf("expected mean 20, got %v", mean)
	}
}
