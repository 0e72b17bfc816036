package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plantops/mv-backend/internal/approvals"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/config"
	"github.com/plantops/mv-backend/internal/database"
	"github.com/plantops/mv-backend/internal/middleware"
	"github.com/plantops/mv-backend/internal/notifications"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/quality"
	"github.com/plantops/mv-backend/internal/store"
)

type Server struct {
	db            *database.Database
	cfg           *config.Config
	authenticator *auth.Authenticator
	rules         *policy.Service
	evaluator     *policy.Evaluator
	requests      *approvals.Manager
	quality       *quality.Service
	notifier      *notifications.NotificationDispatcher
}

func NewServer(
	db *database.Database,
	cfg *config.Config,
	authenticator *auth.Authenticator,
	rules *policy.Service,
	evaluator *policy.Evaluator,
	requests *approvals.Manager,
	qualitySvc *quality.Service,
	notifier *notifications.NotificationDispatcher,
) *Server {
	return &Server{
		db:            db,
		cfg:           cfg,
		authenticator: authenticator,
		rules:         rules,
		evaluator:     evaluator,
		requests:      requests,
		quality:       qualitySvc,
		notifier:      notifier,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewCORSHandler(&s.cfg.CORS))
	r.Use(middleware.RequestContext)
	r.Use(middleware.LoggingMiddleware)

	r.Get("/health", s.HealthCheck)
	r.Get("/ready", s.ReadinessCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticator.Middleware)

		r.Route("/rules", func(r chi.Router) {
			r.Use(s.requireAction(store.ActionManageRules))
			r.Get("/", s.ListRules)
			r.Post("/", s.CreateRule)
			r.Get("/{ruleID}", s.GetRule)
			r.Put("/{ruleID}", s.UpdateRule)
			r.Delete("/{ruleID}", s.DeleteRule)
		})

		r.Post("/permissions/evaluate", s.EvaluatePermission)
		r.Get("/permissions", s.AllPermissions)

		r.Route("/approval-requests", func(r chi.Router) {
			r.Get("/", s.ListRequests)
			r.Post("/", s.CreateRequest)
			r.Get("/statistics", s.RequestStatistics)
			r.Get("/{requestID}", s.GetRequest)
			r.Patch("/{requestID}", s.UpdateRequest)
			r.Post("/{requestID}/decision", s.DecideRequest)
			r.Post("/{requestID}/cancel", s.CancelRequest)
		})

		r.Route("/quality-checks", func(r chi.Router) {
			r.Get("/{checkID}", s.GetQualityCheck)
			r.Patch("/{checkID}/approval", s.UpdateCheckApproval)
			r.Patch("/{checkID}/inspection", s.UpdateCheckInspection)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.ListNotifications)
			r.Get("/unread-count", s.UnreadNotificationCount)
			r.Post("/{notificationID}/read", s.MarkNotificationRead)
		})
	})

	return r
}

// requireAction gates a route subtree on the caller's evaluated permission
// for the action. REQUIRES_APPROVAL does not open administrative routes.
func (s *Server) requireAction(action store.ActionType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.GetAuthenticatedUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
				return
			}

			decision, err := s.evaluator.Evaluate(r.Context(), policy.Actor{
				UserID:       user.ID,
				RoleID:       user.RoleID,
				DepartmentID: user.DepartmentID,
			}, action, policy.ResourceContext{})
			if err != nil {
				middleware.GetLoggerFromContext(r.Context()).Error("permission check failed", "action", action, "error", err)
				writeError(w, http.StatusInternalServerError, InternalError("Permission check failed"))
				return
			}
			if !decision.Allowed {
				writeError(w, http.StatusForbidden, PermissionDenied("You are not allowed to "+string(action)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
