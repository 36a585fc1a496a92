package perf

import (
	"testing"
	"time"
)

func TestSink_Report_Empty(t *testing.T) {
	s := NewSink()

	summary, err := s.Report()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.StartCount != 0 || summary.StopCount != 0 {
		t.Errorf("expected zero counts for an empty sink, got %+v", summary)
	}
}

func TestSink_Report_ComputesCountsAndMeans(t *testing.T) {
	s := NewSink()
	s.RecordStart(100 * time.Millisecond)
	s.RecordStart(200 * time.Millisecond)
	s.RecordStop(50 * time.Millisecond)

	summary, err := s.Report()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.StartCount != 2 {
		t.Errorf("expected 2 start samples, got %d", summary.StartCount)
	}
	if summary.MeanStartLatency != 150*time.Millisecond {
		t.Errorf("expected mean 150ms, got %v", summary.MeanStartLatency)
	}
	if summary.StopCount != 1 {
		t.Errorf("expected 1 stop sample, got %d", summary.StopCount)
	}
	if summary.MeanStopLatency != 50*time.Millisecond {
		t.Errorf("expected mean stop 50ms, got %v", summary.MeanStopLatency)
	}
}
