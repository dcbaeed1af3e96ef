package source

import "context"

// Idle is a no-op source for running the service without hardware. It
// connects immediately and never delivers a payload.
type Idle struct {
	lifecycle
}

func NewIdle() *Idle { return &Idle{lifecycle: newLifecycle()} }

func (d *Idle) Name() string { return "idle" }

func (d *Idle) Open(ctx context.Context, sink Sink) error {
	dctx, err := d.begin(ctx)
	if err != nil {
		return err
	}
	sink.Status(StatusConnected, "Preview only, no device")
	go func() {
		defer d.finish()
		<-dctx.Done()
		sink.Status(StatusDisconnected, "Disconnected")
	}()
	return nil
}

func (d *Idle) Close() error { return d.shutdown(nil) }
