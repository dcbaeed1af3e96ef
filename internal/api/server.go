package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/arrhythmix/internal/db"
	"github.com/banshee-data/arrhythmix/internal/display"
	"github.com/banshee-data/arrhythmix/internal/httputil"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/pipeline"
	"github.com/banshee-data/arrhythmix/internal/state"
	"github.com/banshee-data/arrhythmix/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultPredictionLimit = 50
	maxListLimit           = 1000
)

var apiLog = monitoring.Component("api")

// ControllerFactory builds a fresh controller. The server uses it to start a
// new session after the current one has been stopped.
type ControllerFactory func() (*pipeline.Controller, error)

// Server exposes the pipeline's display view over HTTP. Every handler is a
// pull consumer: it reads snapshots and never touches the histories directly.
type Server struct {
	mu   sync.Mutex
	ctrl *pipeline.Controller

	// Factory is optional. Without it a stopped session stays stopped.
	Factory ControllerFactory
	// Chart sets the y range, rate and title used by /chart and /plot.png.
	Chart display.ChartOptions
	// TailInterval is the cadence of the /debug/tail snapshot stream.
	TailInterval time.Duration

	db    *db.DB
	units string
}

// NewServer serves ctrl. database may be nil, in which case the history
// endpoints answer 503.
func NewServer(ctrl *pipeline.Controller, database *db.DB, defaultUnits string) *Server {
	if !units.IsValid(defaultUnits) {
		defaultUnits = units.Volts
	}
	return &Server{
		ctrl:         ctrl,
		db:           database,
		units:        defaultUnits,
		Chart:        display.ChartOptions{Min: 0, Max: 4},
		TailInterval: display.DefaultInterval,
	}
}

// Controller returns the controller currently being served.
func (s *Server) Controller() *pipeline.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Snapshot returns the display view of the current session.
func (s *Server) Snapshot() pipeline.Snapshot {
	return s.Controller().Snapshot()
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		apiLog(
			"%s %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/predictions", s.listPredictions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/start", s.start)
	mux.HandleFunc("/api/stop", s.stop)
	mux.HandleFunc("/chart", s.showChart)
	mux.HandleFunc("/plot.png", s.showPlot)
	return mux
}

// unitsFor returns the units requested by ?units=, or the server default.
func (s *Server) unitsFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
		return "", false
	}
	return u, true
}

func limitFor(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, true
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 || n > maxListLimit {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return 0, false
	}
	return n, true
}

func (s *Server) snapshot(u string) pipeline.Snapshot {
	snap := s.Controller().Snapshot()
	snap.Samples = units.ConvertSeries(snap.Samples, u)
	return snap
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.unitsFor(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, struct {
		pipeline.Snapshot
		Units string `json:"units"`
	}{s.snapshot(u), u})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap := s.Controller().Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id":      snap.SessionID,
		"state":           snap.State,
		"status":          snap.Status,
		"status_text":     snap.StatusText,
		"prediction_text": snap.PredictionText,
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.unitsFor(w, r)
	if !ok {
		return
	}
	snap := s.snapshot(u)
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id": snap.SessionID,
		"units":      u,
		"window":     display.Summarize(snap.Samples),
		"counters":   snap.Counters,
		"worker":     snap.Worker,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
		"plot_min":    s.Chart.Min,
		"plot_max":    s.Chart.Max,
	})
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "prediction store is not configured")
		return
	}
	limit, ok := limitFor(w, r, defaultPredictionLimit)
	if !ok {
		return
	}
	session := r.URL.Query().Get("session")
	if session == "current" {
		session = s.Controller().Session().ID
	}
	preds, err := s.db.RecentPredictions(r.Context(), session, limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve predictions: "+err.Error())
		return
	}
	if preds == nil {
		preds = []state.Prediction{}
	}
	httputil.WriteJSONOK(w, preds)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "session store is not configured")
		return
	}
	limit, ok := limitFor(w, r, defaultPredictionLimit)
	if !ok {
		return
	}
	sessions, err := s.db.Sessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.SessionRecord{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// start starts the current session, replacing it first when it has been
// stopped and a factory is available.
func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	s.mu.Lock()
	if s.ctrl.State() == pipeline.StateStopped && s.Factory != nil {
		next, err := s.Factory()
		if err != nil {
			s.mu.Unlock()
			httputil.InternalServerError(w, "Failed to create session: "+err.Error())
			return
		}
		s.ctrl = next
		apiLog("replaced stopped session with %s", next.Session().ID)
	}
	ctrl := s.ctrl
	s.mu.Unlock()

	httputil.WriteJSONOK(w, ctrl.Start(context.WithoutCancel(r.Context())))
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	httputil.WriteJSONOK(w, s.Controller().Stop())
}

func (s *Server) chartOptions(u string) display.ChartOptions {
	o := s.Chart
	o.Units = u
	if u == units.Millivolts {
		o.Min = units.ConvertVoltage(o.Min, u)
		o.Max = units.ConvertVoltage(o.Max, u)
	}
	return o
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.unitsFor(w, r)
	if !ok {
		return
	}
	samples := s.snapshot(u).Samples
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := display.RenderChart(w, samples, s.chartOptions(u)); err != nil {
		apiLog("failed to render chart: %v", err)
	}
}

func (s *Server) showPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.unitsFor(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := display.WritePNG(w, s.snapshot(u).Samples, s.chartOptions(u)); err != nil {
		apiLog("failed to render plot: %v", err)
	}
}
