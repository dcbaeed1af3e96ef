package source

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRecording(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []float64
		wantErr bool
	}{
		{name: "json object", in: `{"data": [0.1, 0.2, 0.3]}`, want: []float64{0.1, 0.2, 0.3}},
		{name: "deque", in: "deque([1.5, 2.5, 3.5])\n", want: []float64{1.5, 2.5, 3.5}},
		{name: "deque with maxlen", in: "deque([1, 2], maxlen=200)", want: []float64{1, 2}},
		{name: "csv", in: "1,2,3", want: []float64{1, 2, 3}},
		{name: "json array", in: "[4, 5]", want: []float64{4, 5}},
		{name: "one per line", in: "1.0\n2.0\n", want: []float64{1, 2}},
		{name: "json without data", in: `{"values": [1]}`, wantErr: true},
		{name: "bad number", in: "1,two,3", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecording(strings.NewReader(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRecording(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecording() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplay_LoopsInOrder(t *testing.T) {
	dec := NewDecoder(4095, 3.7)
	r := NewReplay([]float64{0.5, 1.0, 1.5}, 500, dec)
	sink := &recordingSink{}
	if err := r.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	got := sink.waitPayloads(t, 7)
	r.Close()

	var volts []float64
	for _, p := range got[:7] {
		rd, err := dec.Decode([]byte(p))
		if err != nil {
			t.Fatal(err)
		}
		volts = append(volts, float64(int(rd.Volts*1000+0.5))/1000)
	}
	want := []float64{0.5, 1.0, 1.5, 0.5, 1.0, 1.5, 0.5}
	if diff := cmp.Diff(want, volts); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_NoLoopFinishes(t *testing.T) {
	r := NewReplay([]float64{1}, 500, NewDecoder(4095, 3.7))
	r.Loop = false
	sink := &recordingSink{}
	if err := r.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r)
	if got := len(sink.Payloads()); got != 1 {
		t.Errorf("payloads = %d, want 1", got)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReplay_EmptyRecording(t *testing.T) {
	r := NewReplay(nil, 20, NewDecoder(4095, 3.7))
	if err := r.Open(context.Background(), &recordingSink{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open() error = %v, want ErrNotFound", err)
	}
	r.Close()
	waitDone(t, r)
}
