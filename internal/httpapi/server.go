package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vramd/internal/manager"
	"vramd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	TrackUsage(modelID string) error
	VramStatus() types.VramStatusResponse
	SetIdleTimeout(seconds int) error
	SetThreshold(kind string, value float64) error
	HealthCheck(ctx context.Context) types.HealthResponse
}

// EventSource exposes recent manager events for the /events debug endpoint.
// May be nil, in which case /events returns an empty list.
type EventSource interface {
	Events() []manager.Event
}

func NewMux(svc Service, events EventSource) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/track-usage", func(w http.ResponseWriter, r *http.Request) {
		var req types.TrackUsageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.TrackUsage(req.ModelID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.AckResponse{Status: "success"})
	})

	r.Get("/vram-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.VramStatus())
	})

	r.Post("/config/idle-timeout", func(w http.ResponseWriter, r *http.Request) {
		var req types.SetIdleTimeoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.SetIdleTimeout(req.Seconds); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.AckResponse{Status: "success"})
	})

	r.Post("/config/threshold", func(w http.ResponseWriter, r *http.Request) {
		var req types.SetThresholdRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.SetThreshold(req.Kind, req.Value); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.AckResponse{Status: "success"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h := svc.HealthCheck(r.Context())
		code := http.StatusOK
		if h.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		out := []manager.Event{}
		if events != nil {
			out = events.Events()
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSON enforces content type and body size, writing the error response
// itself; the caller only proceeds on true.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps well-known manager errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case manager.IsInvalidArgument(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case manager.IsModelNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
