package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("images", 1, 10) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	var logged []int
	for i := 1; i <= 20; i++ {
		if s.ShouldLog("images", i, 20) {
			logged = append(logged, i)
		}
	}
	// stage change at 1, then 25% (5), 50% (10), 75% (15), final (20)
	want := []int{1, 5, 10, 15, 20}
	if len(logged) != len(want) {
		t.Fatalf("logged %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Fatalf("logged %v, want %v", logged, want)
		}
	}
}

func TestProgressSamplerStageChangeResets(t *testing.T) {
	s := NewProgressSampler(50)
	s.ShouldLog("images", 3, 4)
	if !s.ShouldLog("videos", 1, 4) {
		t.Fatal("expected stage change to emit")
	}
	if s.ShouldLog("videos", 1, 4) {
		t.Fatal("expected repeated progress in same bucket to be suppressed")
	}
	s.Reset()
	if !s.ShouldLog("videos", 1, 4) {
		t.Fatal("expected emit after reset")
	}
}
