package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial"
)

func newTestSerial(path string, port *TestablePort, opened *[]string) *Serial {
	s := NewSerial(path, PortOptions{})
	s.Opener = OpenerFor(port, opened)
	s.Lister = func() ([]PortInfo, error) {
		return []PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, Product: "ECG Data"},
		}, nil
	}
	return s
}

func TestSerial_DeliversLinesInOrder(t *testing.T) {
	port := NewTestablePort()
	var opened []string
	s := newTestSerial("/dev/ttyUSB1", port, &opened)
	sink := &recordingSink{}

	if err := s.Open(context.Background(), sink); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	port.AddLines("100", "Leads Off", "2047")
	got := sink.waitPayloads(t, 3)

	if diff := cmp.Diff([]string{"100", "Leads Off", "2047"}, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/dev/ttyUSB1"}, opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitDone(t, s)
	want := []Status{StatusDiscovering, StatusConnected, StatusDisconnected}
	if diff := cmp.Diff(want, sink.Statuses()); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestSerial_AutoDiscovery(t *testing.T) {
	port := NewTestablePort()
	var opened []string
	s := newTestSerial(AutoPath, port, &opened)
	if err := s.Open(context.Background(), &recordingSink{}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if diff := cmp.Diff([]string{"/dev/ttyACM0"}, opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}
}

func TestSerial_NotFound(t *testing.T) {
	s := newTestSerial(AutoPath, NewTestablePort(), nil)
	s.Identifier = "Other Device"
	sink := &recordingSink{}

	err := s.Open(context.Background(), sink)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open() error = %v, want ErrNotFound", err)
	}
	if diff := cmp.Diff([]Status{StatusDiscovering, StatusError}, sink.Statuses()); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() after failed open: %v", err)
	}
	waitDone(t, s)
}

func TestSerial_OpenErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "missing path", err: fs.ErrNotExist, want: ErrNotFound},
		{name: "busy", err: errors.New("resource busy"), want: ErrConnect},
		{name: "wrapped not exist", err: fmt.Errorf("open: %w", fs.ErrNotExist), want: ErrNotFound},
		{name: "port error", err: &serial.PortError{}, want: ErrConnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSerial("/dev/ttyACM9", PortOptions{})
			s.Opener = func(string, PortOptions) (SerialPorter, error) { return nil, tt.err }
			if err := s.Open(context.Background(), &recordingSink{}); !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSerial_UnplugReportsDisconnected(t *testing.T) {
	port := NewTestablePort()
	s := newTestSerial("/dev/ttyACM0", port, nil)
	sink := &recordingSink{}
	if err := s.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	port.AddLines("1")
	port.Unplug()
	waitDone(t, s)

	statuses := sink.Statuses()
	if statuses[len(statuses)-1] != StatusDisconnected {
		t.Errorf("last status = %v, want disconnected", statuses[len(statuses)-1])
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() after unplug: %v", err)
	}
}

func TestSerial_CloseIsIdempotent(t *testing.T) {
	port := NewTestablePort()
	s := newTestSerial("/dev/ttyACM0", port, nil)
	if err := s.Open(context.Background(), &recordingSink{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i, err)
		}
	}
	if got := port.CloseCalls(); got != 1 {
		t.Errorf("port closed %d times, want 1", got)
	}
	if err := s.Open(context.Background(), &recordingSink{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Open() after Close = %v, want ErrClosed", err)
	}
}

func TestSerial_SendCommand(t *testing.T) {
	port := NewTestablePort()
	s := newTestSerial("/dev/ttyACM0", port, nil)

	if err := s.SendCommand("reset"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendCommand before Open = %v, want ErrClosed", err)
	}
	if err := s.Open(context.Background(), &recordingSink{}); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SendCommand("reset"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := s.SendCommand("rate 250\n"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if got := port.Written(); got != "reset\nrate 250\n" {
		t.Errorf("written = %q", got)
	}

	port.WriteError = errors.New("boom")
	if err := s.SendCommand("x"); err == nil {
		t.Error("expected write error")
	}
}

func TestPortInfo_Matches(t *testing.T) {
	p := PortInfo{Name: "/dev/ttyACM0", Product: "ECG Data", SerialNumber: "A1"}
	for _, id := range []string{"ECG Data", "A1", "/dev/ttyACM0"} {
		if !p.Matches(id) {
			t.Errorf("Matches(%q) = false", id)
		}
	}
	if p.Matches("") || p.Matches("Other") {
		t.Error("unexpected match")
	}
}
