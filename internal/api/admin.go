package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/arrhythmix/internal/pipeline"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/console.html.tmpl"))

// AttachAdminRoutes mounts the operator console under /debug/: a live
// snapshot stream, a raw payload stream and a command form for sources that
// accept device commands.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("console", "live session console", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := consoleTemplate.Execute(buf, s.Controller().Snapshot()); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", s.sendCommand)
	debug.HandleSilentFunc("tail", s.tailSnapshots)
	debug.HandleSilentFunc("tail-raw", s.tailPayloads)
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	err := s.Controller().SendCommand(command)
	if errors.Is(err, pipeline.ErrNoCommander) {
		http.Error(w, "Source does not accept commands", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to write command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, fmt.Sprintf("Wrote command %q to device", command))
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()
	return flusher, true
}

// tailSnapshots streams the display view at TailInterval until the client
// goes away.
func (s *Server) tailSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	interval := s.TailInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			body, err := json.Marshal(s.snapshot(s.units))
			if err != nil {
				apiLog("failed to encode snapshot: %v", err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// tailPayloads streams every raw payload of the current session.
func (s *Server) tailPayloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	ctrl := s.Controller()
	in := ctrl.Ingester()
	stopped := ctrl.Session().Stopped()
	id, c := in.Subscribe()
	defer in.Unsubscribe(id)
	for {
		select {
		case payload, ok := <-c:
			if !ok {
				// Session stopped.
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-stopped:
			return
		case <-r.Context().Done():
			return
		}
	}
}
