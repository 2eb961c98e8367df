// Package web provides an HTTP status server for the sensor-loop daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sweeney/sensor-loop/internal/command"
	"github.com/sweeney/sensor-loop/internal/status"
)

// maxCommandBytes bounds a command request body.
const maxCommandBytes = 64

// Server serves the status page over HTTP and accepts loop commands.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	targets    map[string]command.Target
}

// New creates a Server that reads state from the given tracker. Loops in
// targets accept command frames on POST /loops/{name}/command.
func New(addr string, tracker *status.Tracker, targets map[string]command.Target) *Server {
	s := &Server{tracker: tracker, targets: targets}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("POST /loops/{name}/command", s.handleCommand)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	target, ok := s.targets[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	frame, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(frame) > maxCommandBytes {
		http.Error(w, fmt.Sprintf("command longer than %d bytes", maxCommandBytes), http.StatusRequestEntityTooLarge)
		return
	}

	if err := command.Handle(target, frame); err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, command.ErrUnknown) || errors.Is(err, command.ErrMalformed) {
			code = http.StatusBadRequest
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
