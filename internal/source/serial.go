package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/arrhythmix/internal/monitoring"
)

// AutoPath asks the serial source to discover its port by device identifier.
const AutoPath = "auto"

// DefaultIdentifier is the USB product string announced by the ECG firmware.
const DefaultIdentifier = "ECG Data"

// ErrWriteFailed is returned when a command is only partially written.
var ErrWriteFailed = errors.New("failed to write command to serial port")

var serialLog = monitoring.Component("serial")

// Serial streams newline-delimited payloads from an ECG device attached over
// a USB serial link.
type Serial struct {
	// Path is a device path such as /dev/ttyACM0, or AutoPath.
	Path string
	// Identifier is matched against enumerated ports when Path is AutoPath.
	Identifier string
	Options    PortOptions

	// Opener and Lister default to the go.bug.st/serial implementations.
	Opener PortOpener
	Lister PortLister

	lifecycle
	portMu    sync.Mutex
	port      SerialPorter
	commandMu sync.Mutex
}

// NewSerial returns a serial source for path using the default opener and
// port enumerator.
func NewSerial(path string, opts PortOptions) *Serial {
	return &Serial{
		Path:       path,
		Identifier: DefaultIdentifier,
		Options:    opts,
		Opener:     OpenSerialPort,
		Lister:     ListPorts,
		lifecycle:  newLifecycle(),
	}
}

func (s *Serial) Name() string { return "serial" }

// Resolve returns the device path to open, enumerating ports when Path is
// AutoPath or empty.
func (s *Serial) Resolve() (string, error) {
	path := strings.TrimSpace(s.Path)
	if path != "" && !strings.EqualFold(path, AutoPath) {
		return path, nil
	}
	lister := s.Lister
	if lister == nil {
		lister = ListPorts
	}
	ports, err := lister()
	if err != nil {
		return "", fmt.Errorf("%w: listing ports: %v", ErrNotFound, err)
	}
	id := s.Identifier
	if id == "" {
		id = DefaultIdentifier
	}
	for _, p := range ports {
		if p.Matches(id) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no port identifies as %q", ErrNotFound, id)
}

// Open discovers and opens the port, then delivers each received line to
// sink until the port fails or Close is called.
func (s *Serial) Open(ctx context.Context, sink Sink) error {
	dctx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	sink.Status(StatusDiscovering, "looking for ECG device")
	path, err := s.Resolve()
	if err != nil {
		s.abort()
		sink.Status(StatusError, err.Error())
		return err
	}

	opener := s.Opener
	if opener == nil {
		opener = OpenSerialPort
	}
	port, err := opener(path, s.Options)
	if err != nil {
		s.abort()
		err = classifyOpenError(path, err)
		sink.Status(StatusError, err.Error())
		return err
	}

	s.portMu.Lock()
	if s.isClosed() {
		// Close ran while we were connecting and saw no port to close.
		s.portMu.Unlock()
		port.Close()
		s.finish()
		return ErrClosed
	}
	s.port = port
	s.portMu.Unlock()

	serialLog("connected to %s", path)
	sink.Status(StatusConnected, "Connected to "+path)

	go s.deliver(dctx, port, sink)
	return nil
}

func classifyOpenError(path string, err error) error {
	var pe *serial.PortError
	if errors.Is(err, fs.ErrNotExist) || (errors.As(err, &pe) && pe.Code() == serial.PortNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnect, path, err)
}

func (s *Serial) deliver(ctx context.Context, port SerialPorter, sink Sink) {
	defer s.finish()

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		if ctx.Err() != nil {
			break
		}
		sink.Payload(bytes.Clone(scan.Bytes()))
	}

	detail := "Disconnected"
	if err := scan.Err(); err != nil && !s.isClosed() {
		serialLog("read failed: %v", err)
		detail = "Disconnected: " + err.Error()
	}
	sink.Status(StatusDisconnected, detail)
}

// SendCommand writes a newline-terminated command to the device.
func (s *Serial) SendCommand(command string) error {
	s.portMu.Lock()
	port := s.port
	s.portMu.Unlock()
	if port == nil || s.isClosed() {
		return ErrClosed
	}

	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the port exactly once and waits for delivery to end.
func (s *Serial) Close() error {
	return s.shutdown(func() error {
		s.portMu.Lock()
		port := s.port
		s.portMu.Unlock()
		if port == nil {
			return nil
		}
		return port.Close()
	})
}
