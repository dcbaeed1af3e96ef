package state

import (
	"sync"
	"testing"

	"github.com/banshee-data/arrhythmix/internal/source"
)

func TestShared_PayloadTransitions(t *testing.T) {
	tests := []struct {
		name  string
		start source.Status
		apply func(*Shared)
		want  source.Status
	}{
		{"sample after connect", source.StatusConnected, (*Shared).MarkSample, source.StatusStreaming},
		{"sample after leads off", source.StatusLeadsOff, (*Shared).MarkSample, source.StatusStreaming},
		{"sample after decode error", source.StatusError, (*Shared).MarkSample, source.StatusStreaming},
		{"sentinel while streaming", source.StatusStreaming, (*Shared).MarkLeadsOff, source.StatusLeadsOff},
		{"decode error while streaming", source.StatusStreaming, (*Shared).MarkDecodeError, source.StatusError},
		{"sample after disconnect", source.StatusDisconnected, (*Shared).MarkSample, source.StatusDisconnected},
		{"sentinel after disconnect", source.StatusDisconnected, (*Shared).MarkLeadsOff, source.StatusDisconnected},
		{"decode error while idle", source.StatusIdle, (*Shared).MarkDecodeError, source.StatusIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewShared()
			s.SetStatus(tt.start, "")
			tt.apply(s)
			if got := s.Status().Status; got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShared_Counters(t *testing.T) {
	s := NewShared()
	s.SetStatus(source.StatusConnected, "")
	s.MarkSample()
	s.MarkSample()
	s.MarkLeadsOff()
	s.MarkDecodeError()
	s.MarkDropped()

	want := Counters{Samples: 2, DecodeErrors: 1, LeadsOff: 1, Dropped: 1}
	if got := s.Counters(); got != want {
		t.Errorf("Counters() = %+v, want %+v", got, want)
	}
	if got := s.Status(); got.Detail != "Error decoding" || got.Text() != "Status: Error decoding" {
		t.Errorf("status = %+v, text %q", got, got.Text())
	}
}

func TestStatusReport_Text(t *testing.T) {
	tests := []struct {
		r    StatusReport
		want string
	}{
		{StatusReport{Status: source.StatusStreaming}, "Status: Actively receiving ECG data"},
		{StatusReport{Status: source.StatusLeadsOff}, "Status: Leads Off"},
		{StatusReport{Status: source.StatusConnected, Detail: "Simulated feed"}, "Status: Simulated feed"},
		{StatusReport{Status: source.StatusDisconnected}, "Status: Disconnected"},
	}
	for _, tt := range tests {
		if got := tt.r.Text(); got != tt.want {
			t.Errorf("%v.Text() = %q, want %q", tt.r.Status, got, tt.want)
		}
	}
}

func TestShared_PredictionSlot(t *testing.T) {
	s := NewShared()
	if p := s.Prediction(); p != nil {
		t.Fatalf("initial prediction = %+v, want nil", p)
	}
	if got := s.Prediction().Text(); got != "Prediction: N/A" {
		t.Errorf("Text() = %q", got)
	}

	first := s.Publish(Prediction{Label: "Normal"})
	second := s.Publish(Prediction{Err: "timeout"})
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d", first.Seq, second.Seq)
	}
	got := s.Prediction()
	if !got.IsError() || got.Text() != "Error: timeout" {
		t.Errorf("latest = %+v (%q)", got, got.Text())
	}
}

func TestShared_ConcurrentReadersSeeWholePredictions(t *testing.T) {
	s := NewShared()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if p := s.Prediction(); p != nil && p.Samples != int(p.Seq) {
					t.Errorf("torn prediction %+v", p)
					return
				}
			}
		}()
	}
	for i := 1; i <= 5000; i++ {
		s.Publish(Prediction{Label: "Normal", Samples: i})
	}
	close(stop)
	wg.Wait()
}
