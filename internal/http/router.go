package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/presqr/server/internal/http/handlers"
	"github.com/presqr/server/internal/middleware"
)

// RouterDeps are the handlers and middleware the router mounts
type RouterDeps struct {
	Attendance     *handlers.AttendanceHandler
	Live           *handlers.LiveHandler
	Metrics        http.Handler
	ScanLimiter    *middleware.RateLimiter
	AllowedOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Live updates sit outside /api, where the lecturer client connects
	r.Get("/attendance/{courseId}", deps.Live.HandleCourse)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.NewHealthHandler().ServeHTTP)

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/generate-qr", deps.Attendance.HandleGenerateQR)
			r.Get("/course/{courseId}", deps.Attendance.HandleCourseAttendance)
			r.Get("/sessions/{sessionId}/qr.png", deps.Attendance.HandleSessionQR)

			r.Group(func(r chi.Router) {
				if deps.ScanLimiter != nil {
					r.Use(middleware.RateLimitMiddleware(deps.ScanLimiter, middleware.GetIPKey))
				}
				r.Post("/scan", deps.Attendance.HandleScan)
			})
		})
	})

	return r
}
