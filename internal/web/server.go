// Package web provides the HTTP status page and local control API of the node.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/sweeney/gpio-node/internal/cloud"
	"github.com/sweeney/gpio-node/internal/logger"
	"github.com/sweeney/gpio-node/internal/logic"
	"github.com/sweeney/gpio-node/internal/status"
)

// Controller is the param surface the server exposes.
type Controller interface {
	Write(ctx context.Context, w cloud.Write) error
	Params() []status.ParamState
	Param(device, param string) (status.ParamState, error)
}

// Options configures a Server.
type Options struct {
	Addr         string
	PasswordHash string    // bcrypt hash guarding writes; empty = open
	AccessLog    io.Writer // combined access log; nil = discarded
	Log          logrus.FieldLogger
}

// Server serves the status page and the local params API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	hash       []byte
	log        logrus.FieldLogger
}

// ValueJSON is the body of a single param read or write.
type ValueJSON struct {
	Value *bool `json:"value"`
}

// ErrorJSON is the body of an error response.
type ErrorJSON struct {
	Error string `json:"error"`
}

// New creates a Server that reads state from tracker and applies writes
// through ctrl.
func New(opts Options, tracker *status.Tracker, ctrl Controller) *Server {
	s := &Server{tracker: tracker, ctrl: ctrl, log: opts.Log}
	if opts.PasswordHash != "" {
		s.hash = []byte(opts.PasswordHash)
	}

	r := mux.NewRouter()
	logger.AddRequestID(r, opts.Log)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/params", s.handleParams).Methods(http.MethodGet)
	r.HandleFunc("/params/{device}/{param}", s.handleGetParam).Methods(http.MethodGet)
	r.Handle("/params/{device}/{param}", s.requireAuth(http.HandlerFunc(s.handlePutParam))).Methods(http.MethodPut)

	access := opts.AccessLog
	if access == nil {
		access = io.Discard
	}
	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: handlers.RecoveryHandler()(handlers.LoggingHandler(access, r)),
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		logger.FromContext(r.Context(), s.log).WithError(err).Warn("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	out := cloud.Params{}
	for _, p := range s.ctrl.Params() {
		if out[p.Device] == nil {
			out[p.Device] = make(map[string]bool)
		}
		out[p.Device][p.Param] = p.Value
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.ctrl.Param(vars["device"], vars["param"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueJSON{Value: &p.Value})
}

func (s *Server) handlePutParam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	log := logger.FromContext(r.Context(), s.log)

	var body ValueJSON
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil || body.Value == nil {
		writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: `body must be {"value":true|false}`})
		return
	}

	err := s.ctrl.Write(r.Context(), cloud.Write{
		Device: vars["device"],
		Param:  vars["param"],
		Value:  *body.Value,
		Source: cloud.SourceLocal,
	})
	if err != nil {
		log.WithError(err).Info("local write rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// requireAuth checks HTTP basic auth against the bcrypt hash. Any user
// name is accepted.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hash == nil {
			next.ServeHTTP(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(s.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="gpio-node"`)
			writeJSON(w, http.StatusUnauthorized, ErrorJSON{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, logic.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, logic.ErrReadOnly):
		code = http.StatusForbidden
	}
	writeJSON(w, code, ErrorJSON{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
