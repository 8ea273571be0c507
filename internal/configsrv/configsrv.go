// Package configsrv implements bridge.ConfigSurface: a minimal HTTP status
// and metrics endpoint serviced cooperatively, one request at a time, from
// inside the single-threaded main loop rather than its own goroutine pool.
//
// net/http normally dispatches each request on its own goroutine; that is
// exactly the concurrency the rest of this system avoids (spec §5's "single
// logical thread of control"). Server instead accepts connections on a
// background goroutine (unavoidable — net.Listener.Accept blocks) but queues
// each request and blocks the request's own goroutine until Poll, running on
// the main loop, picks it up and handles it. From the protocol's point of
// view nothing ever executes concurrently with a Tick.
package configsrv

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the point-in-time snapshot a Server renders on its index page.
type Status struct {
	Role        string
	State       string
	Channel     int
	LinkQuality float64
}

// StatusProvider is implemented by *bridge.Sender and *bridge.Receiver
// wrappers in cmd/rcbridge to report their current state without configsrv
// importing the bridge package's role types directly.
type StatusProvider interface {
	Status() Status
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>rcbridge</title></head>
<body>
<h1>rcbridge</h1>
<table>
<tr><td>role</td><td>{{.Role}}</td></tr>
<tr><td>state</td><td>{{.State}}</td></tr>
<tr><td>channel</td><td>{{.Channel}}</td></tr>
<tr><td>link quality</td><td>{{printf "%.3f" .LinkQuality}}</td></tr>
</table>
<p><a href="/metrics">/metrics</a></p>
</body></html>
`))

type pendingRequest struct {
	w    http.ResponseWriter
	r    *http.Request
	done chan struct{}
}

// Server is a bridge.ConfigSurface backed by a real HTTP listener.
type Server struct {
	ln       net.Listener
	handler  http.Handler
	status   StatusProvider
	requests chan pendingRequest
}

// New binds addr (e.g. ":8080") and prepares the /  and /metrics routes. It
// does not start accepting connections until Serve is called once, typically
// from a goroutine spawned alongside the main loop at startup.
func New(addr string, reg *prometheus.Registry, status StatusProvider) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("configsrv: %w", err)
	}
	s := &Server{
		ln:       ln,
		status:   status,
		requests: make(chan pendingRequest),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.handler = mux
	return s, nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until the listener is closed. Each request is
// handed to http's own goroutine-per-request model up to the queueing
// middleware below, which blocks that goroutine until Poll services it —
// the actual handler logic in serveIndex/promhttp therefore always runs on
// the Poll caller's goroutine, never concurrently with anything else in the
// bridge.
func (s *Server) Serve() error {
	queueing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := make(chan struct{})
		s.requests <- pendingRequest{w: w, r: r, done: done}
		<-done
	})
	return http.Serve(s.ln, queueing)
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

// Poll implements bridge.ConfigSurface: it services at most one queued
// request, blocking only until ctx is done or one arrives, whichever is
// first.
func (s *Server) Poll(ctx context.Context) error {
	select {
	case req := <-s.requests:
		s.handler.ServeHTTP(req.w, req.r)
		close(req.done)
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st := s.status.Status()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
