package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 25 {
		t.Fatalf("expected default bucket 25, got %v", s.bucketSize)
	}

	steps := []struct {
		percent float64
		want    bool
	}{
		{-1, false},
		{0, true},
		{10, false},
		{24.9, false},
		{25, true},
		{49, false},
		{80, true},
		{100, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}

	s.Reset()
	if !s.ShouldLog(0) {
		t.Fatal("expected reset sampler to log again")
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}
