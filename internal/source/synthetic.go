package source

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultRateHz is the sample rate of the synthetic and replay feeds.
const DefaultRateHz = 20

// Synthetic generates an ECG-like waveform: a 1 Hz baseline wander around
// 1.8 V, occasional QRS-like spikes and Gaussian noise, clipped to [0, 4] V.
// Samples are encoded as device payloads so they take the same decode path
// as hardware data.
type Synthetic struct {
	RateHz  float64
	Decoder Decoder
	// LeadsOffProbability is the chance that a tick emits the sentinel
	// instead of a sample.
	LeadsOffProbability float64

	rng *rand.Rand
	t   float64

	lifecycle
}

// NewSynthetic returns a generator seeded with seed.
func NewSynthetic(rateHz float64, dec Decoder, seed uint64) *Synthetic {
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	return &Synthetic{
		RateHz:    rateHz,
		Decoder:   dec,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		lifecycle: newLifecycle(),
	}
}

func (g *Synthetic) Name() string { return "synthetic" }

// Next returns the next voltage and advances the generator clock. It is not
// safe for use concurrently with an open feed.
func (g *Synthetic) Next() float64 {
	baseline := 1.8 + 0.2*math.Sin(2*math.Pi*1.0*g.t)
	qrs := 0.0
	if g.rng.Float64() < 0.02 {
		qrs = 1.0 + 0.5*g.rng.Float64()
	}
	noise := 0.05 * g.rng.NormFloat64()
	g.t += 1 / g.RateHz
	return math.Min(math.Max(baseline+qrs+noise, 0), 4)
}

// Open starts emitting one payload per tick until Close.
func (g *Synthetic) Open(ctx context.Context, sink Sink) error {
	dctx, err := g.begin(ctx)
	if err != nil {
		return err
	}
	sink.Status(StatusDiscovering, "starting simulated feed")
	sink.Status(StatusConnected, "Simulated feed")
	go g.run(dctx, sink)
	return nil
}

func (g *Synthetic) run(ctx context.Context, sink Sink) {
	defer g.finish()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / g.RateHz))
	defer ticker.Stop()
	sentinel := []byte(g.Decoder.Sentinel)
	for {
		select {
		case <-ctx.Done():
			sink.Status(StatusDisconnected, "Simulated feed stopped")
			return
		case <-ticker.C:
			if g.LeadsOffProbability > 0 && len(sentinel) > 0 && g.rng.Float64() < g.LeadsOffProbability {
				sink.Payload(sentinel)
				continue
			}
			sink.Payload(g.Decoder.Encode(g.Next()))
		}
	}
}

func (g *Synthetic) Close() error { return g.shutdown(nil) }
