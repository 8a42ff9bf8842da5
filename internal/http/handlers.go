package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"asciimap/internal/config"
	"asciimap/internal/geo"
)

// MapController is the part of the map engine the control API drives.
type MapController interface {
	View() geo.View
	Target() geo.View
	SetTarget(lat, lon float64, zoom int) error
	ForceCenter(lat, lon float64) error
	Ready() bool
	Err() error
	Frames() int64
	Scans() int64
}

type Handlers struct {
	config *config.Config
	logger *zap.Logger
	ctrl   MapController
}

func New(config *config.Config, logger *zap.Logger, ctrl MapController) *Handlers {
	return &Handlers{
		config: config,
		logger: logger,
		ctrl:   ctrl,
	}
}

// Routes returns the control API with logging and CORS applied. Metrics are
// served from gatherer.
func (h *Handlers) Routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/view", h.HandleView)
	mux.HandleFunc("/api/target", h.HandleTarget)
	mux.HandleFunc("/api/center", h.HandleCenter)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type viewResponse struct {
	View   geo.View `json:"view"`
	Target geo.View `json:"target"`
	Ready  bool     `json:"ready"`
	Frames int64    `json:"frames"`
	Scans  int64    `json:"scans"`
	Error  string   `json:"error,omitempty"`
}

func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := viewResponse{
		View:   h.ctrl.View(),
		Target: h.ctrl.Target(),
		Ready:  h.ctrl.Ready(),
		Frames: h.ctrl.Frames(),
		Scans:  h.ctrl.Scans(),
	}
	if err := h.ctrl.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type targetRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	// Zoom keeps the current target zoom when omitted.
	Zoom *int `json:"zoom"`
}

func (h *Handlers) HandleTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}

	zoom := h.ctrl.Target().Zoom
	if req.Zoom != nil {
		zoom = *req.Zoom
	}
	if err := h.ctrl.SetTarget(*req.Latitude, *req.Longitude, zoom); err != nil {
		h.writeTargetError(w, err)
		return
	}

	h.logger.Info("Target set",
		zap.Float64("lat", *req.Latitude),
		zap.Float64("lon", *req.Longitude),
		zap.Int("zoom", zoom))
	writeJSON(w, http.StatusAccepted, h.ctrl.Target())
}

func (h *Handlers) HandleCenter(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}

	if err := h.ctrl.ForceCenter(*req.Latitude, *req.Longitude); err != nil {
		h.writeTargetError(w, err)
		return
	}

	h.logger.Info("Map centered",
		zap.Float64("lat", *req.Latitude),
		zap.Float64("lon", *req.Longitude))
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.ctrl.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !h.ctrl.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decodeTarget checks method and token and parses the body. It writes the
// error response itself and reports whether handling should go on.
func (h *Handlers) decodeTarget(w http.ResponseWriter, r *http.Request) (targetRequest, bool) {
	var req targetRequest

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}

	if !h.config.IsControlPublic() {
		token := ""
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token != h.config.ControlToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return req, false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return req, false
	}
	if req.Latitude == nil || req.Longitude == nil {
		http.Error(w, "latitude and longitude are required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handlers) writeTargetError(w http.ResponseWriter, err error) {
	if errors.Is(err, geo.ErrLatitude) || errors.Is(err, geo.ErrLongitude) || errors.Is(err, geo.ErrZoom) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("Failed to move map", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
