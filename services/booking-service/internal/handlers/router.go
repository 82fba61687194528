package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
)

type Handlers struct {
	Appointments *AppointmentHandler
	Catalog      *CatalogHandler
	Reviews      *ReviewHandler
}

// NewRouter mounts the booking API under /api/v1. Reads of the public catalog
// and of availability need no identity; everything else requires the gateway
// identity headers to have been resolved into an actor.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.WithActorFromHeaders)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/appointments/available-slots", h.Appointments.AvailableSlots)
		r.Get("/availability", h.Appointments.AvailableSlots)

		r.Get("/businesses", h.Catalog.ListBusinesses)
		r.Get("/businesses/{businessId}", h.Catalog.GetBusiness)
		r.Get("/businesses/{businessId}/services", h.Catalog.ListServices)
		r.Get("/businesses/{businessId}/services/{serviceId}", h.Catalog.GetService)
		r.Get("/businesses/{businessId}/employees", h.Catalog.ListEmployees)
		r.Get("/businesses/{businessId}/employees/{employeeId}", h.Catalog.GetEmployee)
		r.Get("/businesses/{businessId}/employees/{employeeId}/schedule", h.Catalog.GetSchedule)
		r.Get("/businesses/{businessId}/reviews", h.Reviews.ForBusiness)

		r.Group(func(r chi.Router) {
			r.Use(requireActor(logger))

			r.Post("/appointments", h.Appointments.Create)
			r.Get("/appointments", h.Appointments.List)
			r.Get("/appointments/{id}", h.Appointments.Get)
			r.Put("/appointments/{id}/cancel", h.Appointments.Cancel)
			r.Put("/appointments/{id}", h.Appointments.Reschedule)
			r.Put("/appointments/{id}/reschedule", h.Appointments.Reschedule)
			r.Put("/appointments/{id}/approve/owner", h.Appointments.ApproveOwner)
			r.Put("/appointments/{id}/reject/owner", h.Appointments.RejectOwner)
			r.Put("/appointments/{id}/approve/employee", h.Appointments.ApproveEmployee)
			r.Put("/appointments/{id}/reject/employee", h.Appointments.RejectEmployee)

			r.Post("/businesses", h.Catalog.CreateBusiness)
			r.Get("/businesses/me", h.Catalog.MyBusiness)
			r.Put("/businesses/{businessId}", h.Catalog.UpdateBusiness)
			r.Post("/businesses/{businessId}/services", h.Catalog.CreateService)
			r.Put("/businesses/{businessId}/services/{serviceId}", h.Catalog.UpdateService)
			r.Delete("/businesses/{businessId}/services/{serviceId}", h.Catalog.DeleteService)
			r.Post("/businesses/{businessId}/employees", h.Catalog.CreateEmployee)
			r.Put("/businesses/{businessId}/employees/{employeeId}", h.Catalog.UpdateEmployee)
			r.Delete("/businesses/{businessId}/employees/{employeeId}", h.Catalog.DeleteEmployee)
			r.Get("/businesses/{businessId}/employees/{employeeId}/invitation", h.Catalog.Invitation)
			r.Put("/businesses/{businessId}/employees/{employeeId}/schedule", h.Catalog.SetSchedule)
			r.Post("/businesses/{businessId}/employees/{employeeId}/schedule", h.Catalog.SetSchedule)
			r.Post("/invitations/{token}/accept", h.Catalog.AcceptInvitation)

			r.Post("/reviews", h.Reviews.Create)
			r.Get("/reviews/me", h.Reviews.Mine)
			r.Put("/reviews/{reviewId}", h.Reviews.Update)
			r.Delete("/reviews/{reviewId}", h.Reviews.Delete)

			r.Get("/favorites", h.Reviews.Favorites)
			r.Get("/favorites/{businessId}", h.Reviews.IsFavorite)
			r.Get("/favorites/{businessId}/check", h.Reviews.IsFavorite)
			r.Post("/favorites/{businessId}", h.Reviews.AddFavorite)
			r.Delete("/favorites/{businessId}", h.Reviews.RemoveFavorite)
		})
	})
	return r
}

func requireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.ActorFromContext(r.Context()); err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
