package source

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements SerialPorter with controllable behaviour for tests.
// Reads block until data is added, EOF is signalled or the port is closed.
type TestablePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	eof      bool

	// WriteError is returned by the next Write call if set.
	WriteError error
	// CloseError is returned by Close if set.
	CloseError error

	closed     bool
	closeCalls int
}

// NewTestablePort returns an empty, open port.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && !p.eof && p.readBuf.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	if p.readBuf.Len() == 0 {
		return 0, errors.New("device unplugged")
	}
	return p.readBuf.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes any blocked reader.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	p.cond.Broadcast()
	return p.CloseError
}

// AddLines queues newline-terminated lines for subsequent reads.
func (p *TestablePort) AddLines(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.readBuf.WriteString(l)
		p.readBuf.WriteByte('\n')
	}
	p.cond.Broadcast()
}

// Unplug makes reads fail once the queued data has been consumed, as a
// physically removed device would.
func (p *TestablePort) Unplug() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// CloseCalls reports how many times Close was called.
func (p *TestablePort) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

// OpenerFor returns a PortOpener that hands out port for any path and
// records the paths it was asked to open.
func OpenerFor(port SerialPorter, opened *[]string) PortOpener {
	var mu sync.Mutex
	return func(path string, _ PortOptions) (SerialPorter, error) {
		mu.Lock()
		defer mu.Unlock()
		if opened != nil {
			*opened = append(*opened, path)
		}
		return port, nil
	}
}
