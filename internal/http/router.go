package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router stdlib http.ServeMux with an optional bearer token on the sync routes
type Router struct {
	mux        *http.ServeMux
	adminToken string
	logger     *zap.Logger
}

func NewRouter(adminToken string, logger *zap.Logger) *Router {
	return &Router{
		mux:        http.NewServeMux(),
		adminToken: adminToken,
		logger:     logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSyncRoutes mounts /health and /api/sync/*
func (r *Router) RegisterSyncRoutes(h *SyncHandler) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Health(w, req)
	})

	r.Handle("/api/sync/trigger", r.requireToken(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Trigger(w, req)
	}))

	r.Handle("/api/sync/status", r.requireToken(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Status(w, req)
	}))
}

// requireToken checks "Authorization: Bearer <token>" when a token is configured
func (r *Router) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if r.adminToken == "" {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(r.adminToken)) != 1 {
			r.logger.Warn("Rejected sync API request",
				zap.String("path", req.URL.Path),
				zap.String("remote_addr", req.RemoteAddr),
			)
			writeJSON(w, http.StatusUnauthorized, Unauthorized())
			return
		}
		next(w, req)
	}
}
