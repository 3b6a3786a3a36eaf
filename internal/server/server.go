// Package server exposes a planet view over HTTP.
//
// The JSON API serves catalog data and accepts input events, which are
// applied to the view on its loop goroutine. State changes are pushed to
// websocket clients by a Hub.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gogpu/planetmap/basemap"
	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/tile"
	"github.com/gogpu/planetmap/timeline"
	"github.com/gogpu/planetmap/view"
)

// Loop runs fn on the view goroutine and waits for it.
type Loop interface {
	Do(ctx context.Context, fn func()) error
}

// View is the subset of view.Planet driven by the API.
type View interface {
	Snapshot() view.State
	SetOverlay(id string)
	SetTime(t time.Time)
	SelectPOI(id string)
	ClearPOI()
	SetWarp(warping bool)
	HandleKey(key string) bool
}

// Surface injects map events, as a pointer or window would.
type Surface interface {
	MoveMouse(p basemap.Point)
	// ClickAt activates the marker under p and reports whether one was hit.
	ClickAt(p basemap.Point) bool
	SetZoom(z float64)
	Resize(s basemap.Size)
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsPath serves Prometheus metrics at path.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// WithLogger sets the access logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// Server routes HTTP requests to the catalog and the view.
type Server struct {
	loop     Loop
	view     View
	surface  Surface
	src      catalog.Source
	resolver *tile.Resolver
	hub      *Hub

	metricsPath string
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

// New creates a Server.
func New(loop Loop, v View, surface Surface, src catalog.Source, resolver *tile.Resolver, hub *Hub, opts ...Option) *Server {
	s := &Server{
		loop:     loop,
		view:     v,
		surface:  surface,
		src:      src,
		resolver: resolver,
		hub:      hub,
		logger:   zerolog.Nop(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/planets", s.handlePlanets)
		r.Get("/planets/{planet}", s.handlePlanet)
		r.Get("/planets/{planet}/overlays", s.handleOverlays)
		r.Get("/planets/{planet}/pois", s.handlePOIs)
		r.Get("/missions", s.handleMissions)
		r.Get("/tiles/{planet}/{overlay}", s.handleTile)

		r.Route("/view", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/tile", s.handleViewTile)
			r.Post("/overlay", s.handleSetOverlay)
			r.Post("/time", s.handleSetTime)
			r.Post("/poi", s.handleSelectPOI)
			r.Delete("/poi", s.handleClearPOI)
			r.Post("/warp", s.handleWarp)
			r.Post("/key", s.handleKey)
			r.Post("/pointer", s.handlePointer)
			r.Post("/click", s.handleClick)
			r.Post("/zoom", s.handleZoom)
			r.Post("/resize", s.handleResize)
		})
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("size", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeSourceError maps catalog failures: unknown planets are 404, anything
// else means the upstream data was unavailable.
func writeSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrUnknownPlanet) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// apply runs fn on the view loop and answers with the resulting state. If
// the request ends before the loop picks fn up, fn is dropped and the client
// gets 503; a change that has started is always reported with 200.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, fn func()) {
	var st view.State
	err := s.loop.Do(r.Context(), func() {
		if fn != nil {
			fn()
		}
		st = s.view.Snapshot()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NewStateDTO(st))
}

func (s *Server) handlePlanets(w http.ResponseWriter, r *http.Request) {
	planets, err := s.src.Planets(r.Context())
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(planets))
}

func (s *Server) handlePlanet(w http.ResponseWriter, r *http.Request) {
	p, err := s.src.Planet(r.Context(), chi.URLParam(r, "planet"))
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	overlays, err := s.src.Overlays(r.Context(), chi.URLParam(r, "planet"))
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(overlays))
}

func (s *Server) handlePOIs(w http.ResponseWriter, r *http.Request) {
	pois, err := s.src.POIs(r.Context(), chi.URLParam(r, "planet"))
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pois))
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []catalog.Mission{})
		return
	}
	missions, err := s.src.Missions(r.Context(), ids)
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(missions))
}

// handleTile renders a tile for any overlay and time. The time parameter
// accepts ISO-8601 or epoch milliseconds.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	iso := r.URL.Query().Get("time")
	if iso == "" {
		iso = timeline.Format(time.Now())
	} else if ms, ok := parseMillis(iso); ok {
		iso = timeline.Format(time.UnixMilli(ms))
	}
	writeTile(w, s.resolver.Resolve(chi.URLParam(r, "planet"), chi.URLParam(r, "overlay"), iso))
}

func (s *Server) handleViewTile(w http.ResponseWriter, r *http.Request) {
	var ref string
	if err := s.loop.Do(r.Context(), func() { ref = s.view.Snapshot().TileRef }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if ref == "" {
		writeError(w, http.StatusNotFound, "no active overlay")
		return
	}
	writeTile(w, ref)
}

func writeTile(w http.ResponseWriter, ref string) {
	mime, data, err := tile.Decode(ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

func parseMillis(s string) (int64, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	return ms, err == nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, nil)
}

func (s *Server) handleSetOverlay(w http.ResponseWriter, r *http.Request) {
	var req overlayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	s.apply(w, r, func() { s.view.SetOverlay(req.ID) })
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, func() { s.view.SetTime(time.UnixMilli(req.Time).UTC()) })
}

func (s *Server) handleSelectPOI(w http.ResponseWriter, r *http.Request) {
	var req poiRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, func() { s.view.SelectPOI(req.ID) })
}

func (s *Server) handleClearPOI(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, s.view.ClearPOI)
}

func (s *Server) handleWarp(w http.ResponseWriter, r *http.Request) {
	var req warpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Warping == nil {
		writeError(w, http.StatusBadRequest, "warping is required")
		return
	}
	s.apply(w, r, func() { s.view.SetWarp(*req.Warping) })
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var resp keyResponse
	err := s.loop.Do(r.Context(), func() {
		resp.Handled = s.view.HandleKey(req.Key)
		resp.State = NewStateDTO(s.view.Snapshot())
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, func() { s.surface.MoveMouse(basemap.Point{X: req.X, Y: req.Y}) })
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var resp clickResponse
	err := s.loop.Do(r.Context(), func() {
		resp.Hit = s.surface.ClickAt(basemap.Point{X: req.X, Y: req.Y})
		resp.State = NewStateDTO(s.view.Snapshot())
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, func() { s.surface.SetZoom(req.Zoom) })
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	s.apply(w, r, func() { s.surface.Resize(basemap.Size{W: req.Width, H: req.Height}) })
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	if !newClient(s.hub, conn).start() {
		_ = conn.Close()
	}
}
