package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
)

// NewRouter mounts the server's handlers behind recovery, request ids,
// request logging, bearer auth and metrics.
func NewRouter(s *Server, keys KeyRing, l *zap.Logger) http.Handler {
	l = logger.OrNop(l)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(l))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(l))
	r.Use(BearerAuthMiddleware(keys))
	r.Use(metrics.Middleware(s.knownTarget))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/indexes", s.ListIndexes)
		r.Get("/groups", s.ListGroups)
		r.Post("/multi-search", s.MultiSearch)
		r.Post("/groups/{group}/search", s.SearchGroup)

		r.Route("/indexes/{index}", func(r chi.Router) {
			r.Get("/", s.GetIndex)
			r.Delete("/", s.DropIndex)
			r.Post("/search", s.SearchIndex)
			r.Post("/documents", s.UploadDocuments)
			if s.deps.Documents != nil {
				r.Get("/documents/{id}", s.GetDocument)
				r.Delete("/documents/{id}", s.DeleteDocument)
			}
			if s.deps.Settings != nil {
				r.Get("/settings", s.GetSettings)
				r.Patch("/settings", s.UpdateSettings)
				r.Delete("/settings", s.ResetSettings)
			}
		})

		if s.deps.Syncer != nil {
			r.Post("/sync", s.Sync)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}
