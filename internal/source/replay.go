package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxRecordingBytes bounds how much of a recording file is read.
const maxRecordingBytes = 64 << 20

// ParseRecording reads a saved voltage series. Three layouts are accepted: a
// JSON object with a "data" array, a deque([...]) dump and a plain comma or
// whitespace separated list.
func ParseRecording(r io.Reader) ([]float64, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxRecordingBytes))
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, fmt.Errorf("empty recording")
	}

	var doc struct {
		Data []float64 `json:"data"`
	}
	if strings.HasPrefix(content, "{") {
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("parse recording: %w", err)
		}
		if doc.Data == nil {
			return nil, fmt.Errorf("parse recording: no \"data\" array")
		}
		return doc.Data, nil
	}

	if rest, ok := strings.CutPrefix(content, "deque(["); ok {
		end := strings.LastIndex(rest, "]")
		if end < 0 {
			return nil, fmt.Errorf("parse recording: unterminated deque")
		}
		content = rest[:end]
	}
	content = strings.TrimSuffix(strings.TrimPrefix(content, "["), "]")

	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
	values := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse recording: value %d: %w", i, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty recording")
	}
	return values, nil
}

// LoadRecording parses the recording at path.
func LoadRecording(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRecording(f)
}

// Replay plays back a recorded voltage series at a fixed rate.
type Replay struct {
	Values  []float64
	RateHz  float64
	Decoder Decoder
	// Loop restarts from the beginning once the recording is exhausted.
	Loop bool

	lifecycle
}

// NewReplay returns a looping replay of values.
func NewReplay(values []float64, rateHz float64, dec Decoder) *Replay {
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	return &Replay{Values: values, RateHz: rateHz, Decoder: dec, Loop: true, lifecycle: newLifecycle()}
}

func (r *Replay) Name() string { return "replay" }

func (r *Replay) Open(ctx context.Context, sink Sink) error {
	dctx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	sink.Status(StatusDiscovering, "loading recording")
	if len(r.Values) == 0 {
		r.abort()
		err := fmt.Errorf("%w: recording has no samples", ErrNotFound)
		sink.Status(StatusError, err.Error())
		return err
	}
	sink.Status(StatusConnected, fmt.Sprintf("Replaying %d samples", len(r.Values)))
	go r.run(dctx, sink)
	return nil
}

func (r *Replay) run(ctx context.Context, sink Sink) {
	defer r.finish()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.RateHz))
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			sink.Status(StatusDisconnected, "Replay stopped")
			return
		case <-ticker.C:
			if i == len(r.Values) {
				if !r.Loop {
					sink.Status(StatusDisconnected, "Recording finished")
					return
				}
				i = 0
			}
			sink.Payload(r.Decoder.Encode(r.Values[i]))
			i++
		}
	}
}

func (r *Replay) Close() error { return r.shutdown(nil) }
