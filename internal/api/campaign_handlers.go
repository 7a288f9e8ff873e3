package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jashank06/Email-Sender-App/internal/mailing"
)

// SendEmailsRequest is the POST /api/send-emails payload.
type SendEmailsRequest struct {
	Provider   string            `json:"provider"`
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Subject    string            `json:"subject"`
	Template   string            `json:"template"`
	SenderName string            `json:"senderName"`
	UserID     string            `json:"userId"`
	Recipients []mailing.Contact `json:"recipients"`
	DelayMs    *int              `json:"delayMs"`
}

// sendDelay resolves the pause between sends: an explicit delayMs wins,
// zero included, otherwise the configured default applies.
func (h *Handlers) sendDelay(req *SendEmailsRequest) time.Duration {
	if req.DelayMs != nil {
		return time.Duration(*req.DelayMs) * time.Millisecond
	}
	return h.defaultDelay
}

// HandleSendEmails validates the batch, then runs the send loop to
// completion and returns the per-recipient results. Validation failures
// refuse the whole batch before any send; per-recipient failures do not.
func (h *Handlers) HandleSendEmails(w http.ResponseWriter, r *http.Request) {
	var req SendEmailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Provider == "" || req.Email == "" || req.Password == "" || req.Subject == "" || req.Template == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields: provider, email, password, subject, template")
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "No recipients provided")
		return
	}

	mailer, err := h.newMailer(req.Provider, req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.orchestrator.Run(r.Context(), mailer, mailing.SendRequest{
		UserID:    req.UserID,
		Subject:   req.Subject,
		Template:  req.Template,
		FromName:  req.SenderName,
		FromEmail: req.Email,
		Contacts:  req.Recipients,
		Delay:     h.sendDelay(&req),
	})
	if err != nil {
		log.Printf("[API] bulk send: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to send emails")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       fmt.Sprintf("Sent %d out of %d emails", batch.SuccessCount, batch.TotalContacts),
		"campaignId":    batch.CampaignID,
		"totalContacts": batch.TotalContacts,
		"successCount":  batch.SuccessCount,
		"failedCount":   batch.FailedCount,
		"results":       batch.Results,
	})
}

// campaignSummary is a list row with the derived rates attached.
type campaignSummary struct {
	*mailing.Campaign
	Stats mailing.CampaignStats `json:"stats"`
}

func (h *Handlers) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.store.GetCampaigns(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		log.Printf("[API] list campaigns: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to load campaigns")
		return
	}

	summaries := make([]campaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		summaries = append(summaries, campaignSummary{Campaign: c, Stats: c.Stats()})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"campaigns": summaries})
}

func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := parseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	campaign, err := h.store.GetCampaign(r.Context(), id, r.URL.Query().Get("userId"))
	if errors.Is(err, mailing.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if err != nil {
		log.Printf("[API] get campaign %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}

	topLinks, err := h.store.GetTopLinks(r.Context(), id, 5)
	if err != nil {
		log.Printf("[API] top links %s: %v", id, err)
		topLinks = []mailing.TopLink{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": campaign,
		"stats":    campaign.Stats(),
		"topLinks": topLinks,
	})
}

func (h *Handlers) HandleCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}

	events, total, err := h.store.GetCampaignEvents(r.Context(), id, r.URL.Query().Get("status"), limit, (page-1)*limit)
	if err != nil {
		log.Printf("[API] campaign events %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}
	if events == nil {
		events = []*mailing.EmailEvent{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (h *Handlers) HandleCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	campaign, err := h.store.GetCampaign(r.Context(), id, "")
	if errors.Is(err, mailing.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if err != nil {
		log.Printf("[API] campaign stats %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}

	timeline, err := h.store.GetHourlyTimeline(r.Context(), id)
	if err != nil {
		log.Printf("[API] timeline %s: %v", id, err)
		timeline = []mailing.HourlyBucket{}
	}
	devices, err := h.store.GetDeviceBreakdown(r.Context(), id)
	if err != nil {
		log.Printf("[API] devices %s: %v", id, err)
		devices = []mailing.BreakdownRow{}
	}
	locations, err := h.store.GetLocationBreakdown(r.Context(), id)
	if err != nil {
		log.Printf("[API] locations %s: %v", id, err)
		locations = []mailing.BreakdownRow{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     campaign.Stats(),
		"timeline":  timeline,
		"devices":   devices,
		"locations": locations,
	})
}

func parseCampaignID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
