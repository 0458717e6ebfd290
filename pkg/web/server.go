package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/lens"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/metrics"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/positions"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"github.com/ritzau/neural-portfolio/pkg/scene"
)

//go:embed static/*
var staticFiles embed.FS

// maxBodySize bounds request bodies, graph uploads included
const maxBodySize = 1 << 20

// topics that may be subscribed to over SSE and websocket sessions
var topics = map[string]bool{
	pubsub.TopicLayout:    true,
	pubsub.TopicEdges:     true,
	pubsub.TopicFrames:    true,
	pubsub.TopicSelection: true,
}

// LayoutResponse summarizes the current layout
type LayoutResponse struct {
	Hash     string         `json:"hash"`
	Reused   bool           `json:"reused"`
	Duration string         `json:"duration"`
	Quality  layout.Quality `json:"quality"`
}

// EdgesResponse is the resolved edge set for the current filter
type EdgesResponse struct {
	Filter   string      `json:"filter"`
	Direct   int         `json:"direct"`
	Indirect int         `json:"indirect"`
	Edges    []lens.Edge `json:"edges"`
}

// CameraResponse is the camera state
type CameraResponse struct {
	Pose         camera.Pose `json:"pose"`
	State        string      `json:"state"`
	InputEnabled bool        `json:"inputEnabled"`
}

// FilterRequest sets the visible node types, e.g. "main,skill". Empty shows all.
type FilterRequest struct {
	Visible string `json:"visible"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	scene     *scene.Scene
	publisher pubsub.Publisher
	metrics   *metrics.Collector
	upgrader  websocket.Upgrader
	sessions  *sessionHub
}

// NewServer creates a web server for sc. collector may be nil, in which case
// /metrics is not served.
func NewServer(sc *scene.Scene, publisher pubsub.Publisher, collector *metrics.Collector) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		scene:     sc,
		publisher: publisher,
		metrics:   collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: newSessionHub(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router with logging and metrics middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Streams
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")
	s.router.HandleFunc("/api/session", s.handleSession).Methods("GET")

	// Graph and layout
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/positions", s.handlePositions).Methods("GET")
	s.router.HandleFunc("/api/layout", s.handleLayout).Methods("GET")
	s.router.HandleFunc("/api/layout", s.handleReload).Methods("POST")
	s.router.HandleFunc("/api/relayout", s.handleRelayout).Methods("POST")
	s.router.HandleFunc("/api/edges", s.handleEdges).Methods("GET")
	s.router.HandleFunc("/api/filter", s.handleGetFilter).Methods("GET")
	s.router.HandleFunc("/api/filter", s.handleSetFilter).Methods("PUT")

	// Camera and interaction
	s.router.HandleFunc("/api/camera", s.handleGetCamera).Methods("GET")
	s.router.HandleFunc("/api/camera", s.handleSetCamera).Methods("POST")
	s.router.HandleFunc("/api/select/{id}", s.handleSelect).Methods("POST")
	s.router.HandleFunc("/api/navigate/{id}", s.handleNavigate).Methods("POST")
	s.router.HandleFunc("/api/jump/{id}", s.handleJump).Methods("POST")
	s.router.HandleFunc("/api/detail", s.handleCloseDetail).Methods("DELETE")
	s.router.HandleFunc("/api/pointer", s.handlePointer).Methods("POST")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("embedded static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !topics[topic] {
		http.Error(w, fmt.Sprintf("unknown topic: %s", topic), http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		logging.WarnContext(r.Context(), "subscribe failed", "topic", topic, "error", err)
		return
	}
	defer sub.Close()

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client gone", "topic", topic, "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scene.Graph())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, positions.Points(s.scene.Positions()))
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	res := s.scene.Layout()
	writeJSON(w, http.StatusOK, LayoutResponse{
		Hash:     res.Hash,
		Reused:   res.Reused,
		Duration: res.Duration.String(),
		Quality:  res.Quality,
	})
}

// handleReload replaces the graph with the JSON document in the request body
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, err := model.ParseJSON(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := s.scene.Reload(g); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	logging.InfoContext(r.Context(), "graph replaced over HTTP", "nodes", g.Len())
	s.handleLayout(w, r)
}

// handleRelayout lays out the current graph from scratch, dropping dragged positions
func (s *Server) handleRelayout(w http.ResponseWriter, r *http.Request) {
	if err := s.scene.Relayout(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logging.InfoContext(r.Context(), "relayout requested over HTTP")
	s.handleLayout(w, r)
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	edges := s.scene.Edges()
	direct, indirect := lens.Counts(edges)
	writeJSON(w, http.StatusOK, EdgesResponse{
		Filter:   s.scene.Filter().Key(),
		Direct:   direct,
		Indirect: indirect,
		Edges:    edges,
	})
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FilterRequest{Visible: s.scene.Filter().Key()})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := lens.ParseFilter(req.Visible)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.scene.SetFilter(f)
	s.handleEdges(w, r)
}

func (s *Server) cameraState() CameraResponse {
	cam := s.scene.Camera()
	return CameraResponse{
		Pose:         cam.Pose(),
		State:        cam.State().String(),
		InputEnabled: cam.InputEnabled(),
	}
}

func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cameraState())
}

// handleSetCamera applies a user camera pose. Rejected with 409 during a transition.
func (s *Server) handleSetCamera(w http.ResponseWriter, r *http.Request) {
	var pose camera.Pose
	if err := decodeJSON(w, r, &pose); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.scene.SetCameraPose(pose) {
		http.Error(w, "camera is transiting", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.cameraState())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.scene.Select(mux.Vars(r)["id"]); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.cameraState())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	anim, err := s.scene.NavigateTo(mux.Vars(r)["id"])
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, anim)
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	pose, err := s.scene.JumpTo(mux.Vars(r)["id"])
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pose)
}

func (s *Server) handleCloseDetail(w http.ResponseWriter, r *http.Request) {
	s.scene.CloseDetail()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var ev scene.PointerEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.scene.Pointer(ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	s.sessions.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	logging.Info("web server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeNodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, scene.ErrUnknownNode) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return raw, nil
}
