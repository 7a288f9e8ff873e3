package mailing

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Jashank06/Email-Sender-App/internal/live"
	"github.com/Jashank06/Email-Sender-App/internal/tracking"
)

// Contact is one recipient of a bulk send.
type Contact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SendRequest describes one bulk-send operation.
type SendRequest struct {
	UserID    string
	Subject   string
	Template  string
	FromName  string
	FromEmail string
	Contacts  []Contact
	Delay     time.Duration
}

// RecipientResult is the per-recipient outcome returned to the caller.
type RecipientResult struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResult summarizes a completed bulk send.
type BatchResult struct {
	CampaignID    uuid.UUID         `json:"campaignId"`
	TotalContacts int               `json:"totalContacts"`
	SuccessCount  int               `json:"successCount"`
	FailedCount   int               `json:"failedCount"`
	Results       []RecipientResult `json:"results"`
}

// OrchestratorStore is the slice of the event store the send loop needs.
type OrchestratorStore interface {
	CreateCampaign(ctx context.Context, c *Campaign) error
	MarkCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error
	AppendSendResult(ctx context.Context, campaignID uuid.UUID, trackingID, email, name string, success bool, messageID, errMsg string) error
	SaveTrackedLinks(ctx context.Context, links []*TrackedLink) error
	GetCampaign(ctx context.Context, campaignID uuid.UUID, userID string) (*Campaign, error)
}

// Broadcaster publishes live events, best effort.
type Broadcaster interface {
	Publish(ctx context.Context, evt live.Event)
}

// Orchestrator runs the sequential per-recipient send loop: personalize,
// rewrite for tracking, dispatch, record, broadcast, throttle. One
// recipient's failure never aborts the batch.
type Orchestrator struct {
	store       OrchestratorStore
	templates   *TemplateService
	broadcaster Broadcaster
	baseURL     string
}

func NewOrchestrator(store OrchestratorStore, templates *TemplateService, broadcaster Broadcaster, baseURL string) *Orchestrator {
	return &Orchestrator{
		store:       store,
		templates:   templates,
		broadcaster: broadcaster,
		baseURL:     baseURL,
	}
}

// Run sends req through mailer and returns the per-recipient results. The
// campaign is created up front and marked completed when the loop finishes,
// whatever mix of successes and failures it saw.
func (o *Orchestrator) Run(ctx context.Context, mailer Mailer, req SendRequest) (*BatchResult, error) {
	campaign := &Campaign{
		UserID:      req.UserID,
		Subject:     req.Subject,
		Template:    req.Template,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		TotalEmails: len(req.Contacts),
	}
	if err := o.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	if err := o.store.MarkCampaignStatus(ctx, campaign.ID, CampaignSending); err != nil {
		return nil, err
	}

	batch := &BatchResult{
		CampaignID:    campaign.ID,
		TotalContacts: len(req.Contacts),
		Results:       make([]RecipientResult, 0, len(req.Contacts)),
	}

	for i, contact := range req.Contacts {
		result := o.sendOne(ctx, mailer, campaign.ID, req, contact)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.SuccessCount++
		} else {
			batch.FailedCount++
		}

		o.broadcastProgress(ctx, campaign.ID, contact.Email)

		if i < len(req.Contacts)-1 && req.Delay > 0 {
			select {
			case <-ctx.Done():
				return batch, ctx.Err()
			case <-time.After(req.Delay):
			}
		}
	}

	if err := o.store.MarkCampaignStatus(ctx, campaign.ID, CampaignCompleted); err != nil {
		log.Printf("[Orchestrator] mark completed %s: %v", campaign.ID, err)
	}
	o.broadcastComplete(ctx, campaign.ID)

	return batch, nil
}

func (o *Orchestrator) sendOne(ctx context.Context, mailer Mailer, campaignID uuid.UUID, req SendRequest, contact Contact) RecipientResult {
	result := RecipientResult{Email: contact.Email, Name: contact.Name}

	trackingID := tracking.NewTrackingID()

	if contact.Email == "" {
		result.Error = "Missing email address"
		if err := o.store.AppendSendResult(ctx, campaignID, trackingID, contact.Email, contact.Name, false, "", result.Error); err != nil {
			log.Printf("[Orchestrator] record skip: %v", err)
		}
		return result
	}

	bindings := map[string]interface{}{"name": contact.Name, "email": contact.Email}
	subject := o.templates.Personalize(req.Subject, bindings)
	html := o.templates.Personalize(req.Template, bindings)
	text := tracking.StripTags(html)

	html, mappings := tracking.RewriteLinks(html, trackingID, o.baseURL, tracking.NewLinkID)
	html = tracking.InjectTrackingPixel(html, trackingID, o.baseURL)

	links := make([]*TrackedLink, 0, len(mappings))
	for _, m := range mappings {
		links = append(links, &TrackedLink{
			LinkID:      m.LinkID,
			CampaignID:  campaignID,
			TrackingID:  m.TrackingID,
			OriginalURL: m.OriginalURL,
		})
	}
	if err := o.store.SaveTrackedLinks(ctx, links); err != nil {
		log.Printf("[Orchestrator] save links for %s: %v", contact.Email, err)
	}

	messageID, err := mailer.Send(ctx, &Message{
		To:          contact.Email,
		ToName:      contact.Name,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		Subject:     subject,
		HTMLContent: html,
		TextContent: text,
	})
	if err != nil {
		log.Printf("[Orchestrator] send to %s failed: %v", contact.Email, err)
		result.Error = err.Error()
		if recErr := o.store.AppendSendResult(ctx, campaignID, trackingID, contact.Email, contact.Name, false, "", result.Error); recErr != nil {
			log.Printf("[Orchestrator] record failure: %v", recErr)
		}
		return result
	}

	result.Success = true
	result.MessageID = messageID
	if err := o.store.AppendSendResult(ctx, campaignID, trackingID, contact.Email, contact.Name, true, messageID, ""); err != nil {
		log.Printf("[Orchestrator] record success: %v", err)
	}
	return result
}

func (o *Orchestrator) broadcastProgress(ctx context.Context, campaignID uuid.UUID, recipient string) {
	evt := live.Event{
		Type:       live.EventProgress,
		CampaignID: campaignID.String(),
		Recipient:  recipient,
		Timestamp:  time.Now(),
	}
	if campaign, err := o.store.GetCampaign(ctx, campaignID, ""); err == nil {
		evt.Stats = campaign.Stats()
	}
	o.broadcaster.Publish(ctx, evt)
}

func (o *Orchestrator) broadcastComplete(ctx context.Context, campaignID uuid.UUID) {
	var stats any
	if campaign, err := o.store.GetCampaign(ctx, campaignID, ""); err == nil {
		stats = campaign.Stats()
	}
	now := time.Now()
	o.broadcaster.Publish(ctx, live.Event{
		Type:       live.EventComplete,
		CampaignID: campaignID.String(),
		Timestamp:  now,
		Stats:      stats,
	})
	o.broadcaster.Publish(ctx, live.Event{
		Type:       live.EventCampaignUpdate,
		CampaignID: campaignID.String(),
		Timestamp:  now,
		Stats:      stats,
	})
}
