package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Jashank06/Email-Sender-App/internal/live"
	"github.com/Jashank06/Email-Sender-App/internal/mailing"
	"github.com/Jashank06/Email-Sender-App/internal/tracking"
)

// TrackingStore is the slice of the event store the HTTP layer needs.
type TrackingStore interface {
	RecordEmailEvent(ctx context.Context, trackingID, eventType string, meta mailing.SubEventMeta) (*mailing.EmailEvent, error)
	RecordLinkClick(ctx context.Context, linkID string, meta mailing.SubEventMeta) (*mailing.TrackedLink, error)
	RecomputeCampaignAggregates(ctx context.Context, campaignID uuid.UUID) error
	GetCampaign(ctx context.Context, campaignID uuid.UUID, userID string) (*mailing.Campaign, error)
	GetCampaigns(ctx context.Context, userID string) ([]*mailing.Campaign, error)
	GetCampaignEvents(ctx context.Context, campaignID uuid.UUID, status string, limit, offset int) ([]*mailing.EmailEvent, int, error)
	GetTopLinks(ctx context.Context, campaignID uuid.UUID, limit int) ([]mailing.TopLink, error)
	GetHourlyTimeline(ctx context.Context, campaignID uuid.UUID) ([]mailing.HourlyBucket, error)
	GetDeviceBreakdown(ctx context.Context, campaignID uuid.UUID) ([]mailing.BreakdownRow, error)
	GetLocationBreakdown(ctx context.Context, campaignID uuid.UUID) ([]mailing.BreakdownRow, error)
}

// Broadcaster publishes live events, best effort.
type Broadcaster interface {
	Publish(ctx context.Context, evt live.Event)
}

// MailerFactory builds a transport from the credentials in a send request.
type MailerFactory func(provider, email, password string) (mailing.Mailer, error)

// Handlers bundles the HTTP layer's collaborators. defaultDelay is the
// configured pause between sends, used when a request carries no delayMs.
type Handlers struct {
	store        TrackingStore
	orchestrator *mailing.Orchestrator
	broadcaster  Broadcaster
	locator      tracking.GeoLocator
	hub          *live.Hub
	defaultDelay time.Duration
	newMailer    MailerFactory
}

func NewHandlers(store TrackingStore, orchestrator *mailing.Orchestrator, broadcaster Broadcaster, locator tracking.GeoLocator, hub *live.Hub, defaultDelay time.Duration) *Handlers {
	return &Handlers{
		store:        store,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		locator:      locator,
		hub:          hub,
		defaultDelay: defaultDelay,
		newMailer: func(provider, email, password string) (mailing.Mailer, error) {
			return mailing.NewSMTPSender(provider, email, password)
		},
	}
}

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Get("/track/open/{trackingId}", h.HandleOpen)
	r.Get("/track/click/{linkId}", h.HandleClick)

	r.Route("/api", func(r chi.Router) {
		r.Post("/send-emails", h.HandleSendEmails)
		r.Get("/campaigns", h.HandleListCampaigns)
		r.Get("/campaigns/{id}", h.HandleGetCampaign)
		r.Get("/campaigns/{id}/events", h.HandleCampaignEvents)
		r.Get("/campaigns/{id}/stats", h.HandleCampaignStats)
		if h.hub != nil {
			r.Get("/live/events", h.hub.ServeSSE)
		}
	})

	return r
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "message": message})
}
