// Package api exposes the operator HTTP interface for managing the service
// catalog, plus health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workmanhq/workman-bot/internal/domain"
	"github.com/workmanhq/workman-bot/internal/health"
	"github.com/workmanhq/workman-bot/internal/repository"
	"github.com/workmanhq/workman-bot/pkg/logger"
)

// CardRenderer draws a placeholder listing card when no image is supplied.
type CardRenderer interface {
	Render(service *domain.Service) (string, error)
}

// Server is the operator-facing HTTP API.
type Server struct {
	services repository.ServiceRepository
	renderer CardRenderer
	checker  *health.Checker
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer wires the API against the catalog repository.
func NewServer(services repository.ServiceRepository, renderer CardRenderer, checker *health.Checker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		services: services,
		renderer: renderer,
		checker:  checker,
		validate: validator.New(),
		log:      log,
	}
}

// Router builds the chi router with all API routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/services", func(r chi.Router) {
		r.Post("/", s.handleCreateService)
		r.Get("/", s.handleListServices)
		r.Get("/{id}", s.handleGetService)
		r.Patch("/{id}/availability", s.handleUpdateAvailability)
	})

	return r
}

type createServiceRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"required"`
	Price       int64  `json:"price" validate:"required,gt=0"`
	ImagePath   string `json:"image_path"`
	City        string `json:"city" validate:"required"`
	Country     string `json:"country" validate:"required"`
}

type updateAvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	service := &domain.Service{
		Name:                  req.Name,
		Description:           req.Description,
		Price:                 req.Price,
		ImagePath:             req.ImagePath,
		City:                  req.City,
		Country:               req.Country,
		IsActive:              true,
		IsAvailableInLocation: true,
		CreatedAt:             time.Now().UTC(),
	}

	if err := s.services.Create(r.Context(), service); err != nil {
		s.log.Error("create service failed", slog.Any("error", err))
		s.respondError(w, r, http.StatusInternalServerError, "failed to create service")
		return
	}

	if service.ImagePath == "" && s.renderer != nil {
		s.attachCard(r.Context(), service)
	}

	s.respondJSON(w, http.StatusCreated, service)
}

// attachCard renders a placeholder card after insert. Rendering failures are
// logged and the listing stays imageless.
func (s *Server) attachCard(ctx context.Context, service *domain.Service) {
	path, err := s.renderer.Render(service)
	if err != nil {
		s.log.Warn("card rendering failed", slog.Int64("service_id", service.ID), slog.Any("error", err))
		return
	}

	if err := s.services.UpdateImage(ctx, service.ID, path); err != nil {
		s.log.Warn("failed to store card path", slog.Int64("service_id", service.ID), slog.Any("error", err))
		return
	}

	service.ImagePath = path
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	var (
		services []domain.Service
		err      error
	)

	city := r.URL.Query().Get("city")
	country := r.URL.Query().Get("country")
	if city != "" || country != "" {
		services, err = s.services.ListByLocation(r.Context(), city, country)
	} else {
		services, err = s.services.ListAll(r.Context())
	}
	if err != nil {
		s.log.Error("list services failed", slog.Any("error", err))
		s.respondError(w, r, http.StatusInternalServerError, "failed to list services")
		return
	}

	if services == nil {
		services = []domain.Service{}
	}
	s.respondJSON(w, http.StatusOK, services)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	service, err := s.services.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(w, r, http.StatusNotFound, "service not found")
			return
		}
		s.log.Error("get service failed", slog.Int64("service_id", id), slog.Any("error", err))
		s.respondError(w, r, http.StatusInternalServerError, "failed to fetch service")
		return
	}

	s.respondJSON(w, http.StatusOK, service)
}

func (s *Server) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	var req updateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	service, err := s.services.UpdateAvailability(r.Context(), id, *req.Available)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(w, r, http.StatusNotFound, "service not found")
			return
		}
		s.log.Error("update availability failed", slog.Int64("service_id", id), slog.Any("error", err))
		s.respondError(w, r, http.StatusInternalServerError, "failed to update service")
		return
	}

	s.respondJSON(w, http.StatusOK, service)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	results := s.checker.Check(r.Context())
	status := http.StatusOK
	for _, result := range results {
		if result != "OK" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	s.respondJSON(w, status, results)
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, http.StatusBadRequest, "invalid service id")
		return 0, false
	}
	return id, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", slog.Any("error", err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	correlationID := logger.CorrelationIDFromContext(r.Context())
	s.respondJSON(w, status, map[string]string{
		"error":          message,
		"correlation_id": correlationID,
	})
}
