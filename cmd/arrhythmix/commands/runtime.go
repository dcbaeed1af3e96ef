package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/arrhythmix/internal/classifier"
	"github.com/banshee-data/arrhythmix/internal/config"
	"github.com/banshee-data/arrhythmix/internal/db"
	"github.com/banshee-data/arrhythmix/internal/inference"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/pipeline"
	"github.com/banshee-data/arrhythmix/internal/publish"
	"github.com/banshee-data/arrhythmix/internal/source"
)

// runtime owns the long-lived collaborators shared by every session: the
// classifier, the database and the publisher.
type runtime struct {
	cfg        *config.Config
	db         *db.DB
	classifier inference.Classifier
	observers  []inference.Observer
	closers    []func() error

	// seed feeds synthetic sources; zero picks a time based seed.
	seed uint64
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if path := cfg.GetDatabase(); path != "" {
		database, err := db.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", path, err)
		}
		rt.db = database
		rt.observers = append(rt.observers, db.Recorder{DB: database})
		rt.closers = append(rt.closers, database.Close)
	}

	if rc := cfg.GetRedis(); rc.Addr != "" {
		pub, err := publish.NewRedis(rc.Addr, rc.Channel, rc.Key)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pub.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = pub.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", rc.Addr, err)
		}
		rt.observers = append(rt.observers, pub)
	}

	c, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	rt.classifier = c
	if r, isRemote := c.(*classifier.Remote); isRemote {
		rt.closers = append(rt.closers, r.Close)
	}

	ok = true
	return rt, nil
}

func newClassifier(cfg *config.Config) (inference.Classifier, error) {
	cc := cfg.GetClassifier()
	rate := cfg.GetSampleRateHz()
	switch cc.Kind {
	case config.ClassifierGRPC:
		r, err := classifier.DialRemote(cc.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to dial classifier %s: %w", cc.Address, err)
		}
		r.InputLength = cc.InputLength
		r.SampleRateHz = rate
		return r, nil
	case config.ClassifierHTTP:
		return classifier.NewHTTP(cc.Address, cc.InputLength, rate), nil
	default:
		return classifier.NewRhythm(rate), nil
	}
}

// sources builds fresh primary and fallback sources; sources are single use.
func (rt *runtime) sources() (primary, fallback source.Source, err error) {
	cfg := rt.cfg
	dec := cfg.Decoder()
	switch cfg.GetSource() {
	case config.SourceSynthetic:
		primary = rt.synthetic()
	case config.SourceReplay:
		values, err := source.LoadRecording(cfg.GetRecording())
		if err != nil {
			return nil, nil, err
		}
		primary = source.NewReplay(values, cfg.GetSampleRateHz(), dec)
	case config.SourceIdle:
		primary = source.NewIdle()
	default:
		opts, err := cfg.GetSerial()
		if err != nil {
			return nil, nil, err
		}
		s := source.NewSerial(cfg.GetPort(), opts)
		s.Identifier = cfg.GetDeviceIdentifier()
		primary = s
	}
	if cfg.GetFallbackSynthetic() && cfg.GetSource() != config.SourceSynthetic {
		fallback = rt.synthetic()
	}
	return primary, fallback, nil
}

func (rt *runtime) synthetic() *source.Synthetic {
	seed := rt.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return source.NewSynthetic(rt.cfg.GetSampleRateHz(), rt.cfg.Decoder(), seed)
}

// newController returns a controller for a new session, or nil with an
// error when its source cannot be built.
func (rt *runtime) newController() (*pipeline.Controller, error) {
	primary, fallback, err := rt.sources()
	if err != nil {
		return nil, err
	}
	cfg := rt.cfg
	opts := pipeline.Options{
		DisplayCapacity:   cfg.GetDisplayCapacity(),
		DisplayFill:       cfg.GetDisplayFill(),
		InferenceCapacity: cfg.GetInferenceCapacity(),
		FeedBuffer:        cfg.GetFeedBuffer(),
		Decoder:           cfg.Decoder(),
		Policy:            inference.Policy{Refresh: cfg.GetRefreshSamples()},
		PollInterval:      cfg.GetPollInterval(),
		ClassifyTimeout:   cfg.GetClassifyTimeout(),
		StopTimeout:       cfg.GetStopTimeout(),
		Classifier:        rt.classifier,
		Observers:         rt.observers,
		Source:            primary,
		Fallback:          fallback,
	}
	if rt.db != nil {
		opts.Recorder = rt.db
	}
	return pipeline.NewController(opts), nil
}

// Close releases every collaborator in reverse order of creation.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			monitoring.Logf("close failed: %v", err)
		}
	}
	rt.closers = nil
}
