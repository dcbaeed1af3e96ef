package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/arrhythmix/internal/inference"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/source"
	"github.com/banshee-data/arrhythmix/internal/state"
)

var logf = monitoring.Component("pipeline")

// DefaultStopTimeout bounds how long Stop waits for tasks to exit.
const DefaultStopTimeout = 2 * time.Second

// SessionRecorder persists session boundaries.
type SessionRecorder interface {
	RecordSessionStart(ctx context.Context, id, sourceName string, startedAt time.Time) error
	RecordSessionStop(ctx context.Context, id string, stoppedAt time.Time, counters state.Counters) error
}

// Commander is implemented by sources that accept device commands.
type Commander interface {
	SendCommand(command string) error
}

// ErrNoCommander is returned by SendCommand when the active source takes no
// commands.
var ErrNoCommander = errors.New("active source does not accept commands")

// Options configures a Controller.
type Options struct {
	DisplayCapacity   int
	DisplayFill       float64
	InferenceCapacity int
	FeedBuffer        int
	Decoder           source.Decoder

	Policy          inference.Policy
	PollInterval    time.Duration
	ClassifyTimeout time.Duration
	StopTimeout     time.Duration

	Classifier inference.Classifier
	Observers  []inference.Observer
	Recorder   SessionRecorder

	// Fallback replaces Source when Source fails to open.
	Source   source.Source
	Fallback source.Source
}

// Lifecycle states reported in a Confirmation.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateStopped = "stopped"
)

// Confirmation is returned by Start and Stop.
type Confirmation struct {
	State     string `json:"state"`
	SessionID string `json:"session_id"`
	Source    string `json:"source,omitempty"`
	Message   string `json:"message,omitempty"`
	// Clean is false when Stop gave up waiting for a task.
	Clean bool      `json:"clean"`
	At    time.Time `json:"at"`
}

// Snapshot is the display pull view: window, status and latest prediction.
type Snapshot struct {
	SessionID      string             `json:"session_id"`
	State          string             `json:"state"`
	Samples        []float64          `json:"samples"`
	Status         state.StatusReport `json:"status"`
	StatusText     string             `json:"status_text"`
	Prediction     *state.Prediction  `json:"prediction,omitempty"`
	PredictionText string             `json:"prediction_text"`
	Counters       state.Counters     `json:"counters"`
	Worker         inference.Stats    `json:"worker"`
}

// Controller runs one session: a source feeding an Ingester and an
// inference Worker. A stopped controller stays stopped.
type Controller struct {
	opts     Options
	session  *Session
	ingester *Ingester
	worker   *inference.Worker

	mu        sync.Mutex
	state     string
	active    source.Source
	cancel    context.CancelFunc
	startConf Confirmation

	tasks    sync.WaitGroup
	stopOnce sync.Once
	stopConf Confirmation
}

// NewController builds the session and its tasks without starting them.
func NewController(opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	session := NewSession(opts.DisplayCapacity, opts.DisplayFill, opts.InferenceCapacity)
	w := inference.NewWorker(session.Inference, opts.Classifier, session.Shared, opts.Policy)
	if opts.PollInterval > 0 {
		w.Interval = opts.PollInterval
	}
	if opts.ClassifyTimeout > 0 {
		w.Timeout = opts.ClassifyTimeout
	}
	w.Observers = opts.Observers
	w.SessionID = session.ID

	return &Controller{
		opts:     opts,
		session:  session,
		ingester: NewIngester(session, opts.Decoder, opts.FeedBuffer),
		worker:   w,
		state:    StateIdle,
	}
}

// Session returns the controller's session.
func (c *Controller) Session() *Session { return c.session }

// Ingester returns the session's sink.
func (c *Controller) Ingester() *Ingester { return c.ingester }

// State returns idle, running or stopped.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the ingester, the worker and the source connection. A
// second call, or a call after Stop, changes nothing and returns the current
// confirmation. The run is not tied to ctx's cancellation; only Stop ends it.
func (c *Controller) Start(ctx context.Context) Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRunning:
		return c.startConf
	case StateStopped:
		return c.stopConf
	}
	if c.opts.Source == nil {
		return c.confirm(StateIdle, "no source configured", true)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.state = StateRunning
	c.active = c.opts.Source
	c.session.Shared.SetSource(c.opts.Source.Name())

	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.RecordSessionStart(ctx, c.session.ID, c.opts.Source.Name(), c.session.StartedAt); err != nil {
			logf("record session start: %v", err)
		}
	}

	c.tasks.Add(3)
	go func() {
		defer c.tasks.Done()
		c.ingester.Run(runCtx)
	}()
	go func() {
		defer c.tasks.Done()
		_ = c.worker.Run(runCtx)
	}()
	go func() {
		defer c.tasks.Done()
		c.connect(runCtx)
	}()

	logf("session %s started with %s source", c.session.ID, c.opts.Source.Name())
	c.startConf = c.confirm(StateRunning, "started", true)
	return c.startConf
}

// connect opens the primary source, switching to the fallback if it fails,
// then blocks until the source ends or the session stops.
func (c *Controller) connect(ctx context.Context) {
	src := c.opts.Source
	err := src.Open(ctx, c.ingester)
	if err != nil && c.opts.Fallback != nil && !c.session.IsStopped() {
		logf("%s source failed: %v; falling back to %s", src.Name(), err, c.opts.Fallback.Name())
		src = c.opts.Fallback
		c.mu.Lock()
		c.active = src
		c.mu.Unlock()
		c.session.Shared.SetSource(src.Name())
		err = src.Open(ctx, c.ingester)
	}
	if err != nil {
		if !errors.Is(err, source.ErrClosed) {
			logf("%s source failed: %v", src.Name(), err)
		}
		return
	}

	select {
	case <-src.Done():
		if !c.session.IsStopped() {
			logf("%s source ended: %s", src.Name(), c.session.Shared.Status().Detail)
		}
	case <-c.session.Stopped():
	}
}

// Stop signals every task, closes the sources exactly once and waits up to
// StopTimeout for the tasks to exit. Every call returns the same
// confirmation, including a call without a prior Start.
func (c *Controller) Stop() Confirmation {
	c.stopOnce.Do(c.teardown)
	return c.stopConf
}

func (c *Controller) teardown() {
	c.mu.Lock()
	wasRunning := c.state == StateRunning
	c.state = StateStopped
	// Start may observe the stopped state before the wait below ends.
	c.stopConf = c.confirm(StateStopped, "stopping", true)
	cancel := c.cancel
	c.mu.Unlock()

	if !wasRunning {
		c.session.Stop()
		c.mu.Lock()
		c.stopConf = c.confirm(StateStopped, "not started", true)
		c.mu.Unlock()
		return
	}

	c.session.Stop()
	cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for _, src := range []source.Source{c.opts.Source, c.opts.Fallback} {
			if src == nil {
				continue
			}
			if err := src.Close(); err != nil {
				logf("close %s source: %v", src.Name(), err)
			}
		}
		c.tasks.Wait()
	}()

	clean := true
	select {
	case <-finished:
	case <-time.After(c.opts.StopTimeout):
		clean = false
		logf("session %s: tasks still running after %v", c.session.ID, c.opts.StopTimeout)
	}

	c.ingester.closeSubscribers()
	c.session.Shared.SetStatus(source.StatusDisconnected, "Stopped")

	if c.opts.Recorder != nil {
		ctx, done := context.WithTimeout(context.Background(), c.opts.StopTimeout)
		if err := c.opts.Recorder.RecordSessionStop(ctx, c.session.ID, time.Now(), c.session.Shared.Counters()); err != nil {
			logf("record session stop: %v", err)
		}
		done()
	}

	msg := "stopped"
	if !clean {
		msg = "stopped; timed out waiting for tasks"
	}
	logf("session %s %s", c.session.ID, msg)
	c.mu.Lock()
	c.stopConf = c.confirm(StateStopped, msg, clean)
	c.mu.Unlock()
}

// confirm must be called with c.mu held.
func (c *Controller) confirm(st, msg string, clean bool) Confirmation {
	conf := Confirmation{
		State:     st,
		SessionID: c.session.ID,
		Message:   msg,
		Clean:     clean,
		At:        time.Now(),
	}
	if c.active != nil {
		conf.Source = c.active.Name()
	}
	return conf
}

// Snapshot returns the current display view. It has no side effects.
func (c *Controller) Snapshot() Snapshot {
	shared := c.session.Shared
	status := shared.Status()
	pred := shared.Prediction()
	return Snapshot{
		SessionID:      c.session.ID,
		State:          c.State(),
		Samples:        c.session.Display.Snapshot(),
		Status:         status,
		StatusText:     status.Text(),
		Prediction:     pred,
		PredictionText: pred.Text(),
		Counters:       shared.Counters(),
		Worker:         c.worker.Stats(),
	}
}

// SendCommand forwards a command to the active source when it accepts one.
func (c *Controller) SendCommand(command string) error {
	c.mu.Lock()
	src := c.active
	c.mu.Unlock()
	cmd, ok := src.(Commander)
	if !ok {
		return ErrNoCommander
	}
	return cmd.SendCommand(command)
}
