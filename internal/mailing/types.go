package mailing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a campaign, event, or link id is unknown.
var ErrNotFound = errors.New("not found")

// Campaign status constants
const (
	CampaignPending   = "pending"
	CampaignSending   = "sending"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Email event status constants
const (
	EventSent      = "sent"
	EventDelivered = "delivered"
	EventOpened    = "opened"
	EventClicked   = "clicked"
	EventBounced   = "bounced"
	EventFailed    = "failed"
)

// statusOrder lists the non-terminal statuses in the order a recorded hit
// may advance an event through. The store renders its SQL transition
// expressions from this table, so it is the single source of truth.
var statusOrder = []string{EventSent, EventDelivered, EventOpened, EventClicked}

// statusRank maps each non-terminal status to its position in statusOrder.
var statusRank = func() map[string]int {
	ranks := make(map[string]int, len(statusOrder))
	for i, s := range statusOrder {
		ranks[s] = i
	}
	return ranks
}()

// terminalStatuses absorb all later transitions and are reachable only
// from sent or delivered.
var terminalStatuses = []string{EventBounced, EventFailed}

// IsTerminalStatus reports whether a status absorbs all later transitions.
func IsTerminalStatus(status string) bool {
	for _, s := range terminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// JSON helper type for JSONB fields
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, j)
}

// Campaign is one bulk-send operation and its aggregate outcome. The counter
// fields are a cached view derived from the email_events rows; opened and
// clicked counts are always refreshed by recount, never trusted as truth.
type Campaign struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         string     `json:"userId" db:"user_id"`
	Subject        string     `json:"subject" db:"subject"`
	Template       string     `json:"template" db:"template"`
	FromName       string     `json:"fromName" db:"from_name"`
	FromEmail      string     `json:"fromEmail" db:"from_email"`
	TotalEmails    int        `json:"totalEmails" db:"total_emails"`
	SentCount      int        `json:"sentCount" db:"sent_count"`
	DeliveredCount int        `json:"deliveredCount" db:"delivered_count"`
	OpenedCount    int        `json:"openedCount" db:"opened_count"`
	ClickedCount   int        `json:"clickedCount" db:"clicked_count"`
	FailedCount    int        `json:"failedCount" db:"failed_count"`
	BouncedCount   int        `json:"bouncedCount" db:"bounced_count"`
	Status         string     `json:"status" db:"status"`
	Metadata       JSON       `json:"metadata" db:"metadata"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt    *time.Time `json:"completedAt" db:"completed_at"`
}

// EmailEvent is the per-recipient record of one send attempt and its
// tracking history, keyed by the tracking id embedded in the beacon URL.
// CampaignID is nullable because an open hit can physically arrive before
// the send loop commits the sent record.
type EmailEvent struct {
	ID             int64      `json:"id" db:"id"`
	CampaignID     *uuid.UUID `json:"campaignId" db:"campaign_id"`
	TrackingID     string     `json:"trackingId" db:"tracking_id"`
	RecipientEmail string     `json:"recipientEmail" db:"recipient_email"`
	RecipientName  string     `json:"recipientName" db:"recipient_name"`
	Status         string     `json:"status" db:"status"`
	MessageID      string     `json:"messageId" db:"message_id"`
	ErrorMessage   string     `json:"errorMessage" db:"error_message"`
	OpenCount      int        `json:"openCount" db:"open_count"`
	ClickCount     int        `json:"clickCount" db:"click_count"`
	FirstOpenedAt  *time.Time `json:"firstOpenedAt" db:"first_opened_at"`
	LastOpenedAt   *time.Time `json:"lastOpenedAt" db:"last_opened_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// EmailSubEvent is one row of an EmailEvent's append-only history log.
type EmailSubEvent struct {
	ID         int64     `json:"id" db:"id"`
	TrackingID string    `json:"trackingId" db:"tracking_id"`
	EventType  string    `json:"eventType" db:"event_type"`
	IPAddress  string    `json:"ipAddress" db:"ip_address"`
	Device     string    `json:"device" db:"device"`
	Browser    string    `json:"browser" db:"browser"`
	OS         string    `json:"os" db:"os"`
	Country    string    `json:"country" db:"country"`
	City       string    `json:"city" db:"city"`
	Region     string    `json:"region" db:"region"`
	Timezone   string    `json:"timezone" db:"timezone"`
	LinkURL    string    `json:"linkUrl" db:"link_url"`
	Metadata   JSON      `json:"metadata" db:"metadata"`
	OccurredAt time.Time `json:"occurredAt" db:"occurred_at"`
}

// TrackedLink is one rewritten hyperlink occurrence. Two identical URLs in
// the same body get two rows; each redirects and counts independently.
type TrackedLink struct {
	LinkID      string    `json:"linkId" db:"link_id"`
	CampaignID  uuid.UUID `json:"campaignId" db:"campaign_id"`
	TrackingID  string    `json:"trackingId" db:"tracking_id"`
	OriginalURL string    `json:"originalUrl" db:"original_url"`
	ClickCount  int       `json:"clickCount" db:"click_count"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// LinkClick is one entry in a TrackedLink's ordered click log.
type LinkClick struct {
	ID        int64     `json:"id" db:"id"`
	LinkID    string    `json:"linkId" db:"link_id"`
	IPAddress string    `json:"ipAddress" db:"ip_address"`
	Device    string    `json:"device" db:"device"`
	Browser   string    `json:"browser" db:"browser"`
	OS        string    `json:"os" db:"os"`
	Country   string    `json:"country" db:"country"`
	City      string    `json:"city" db:"city"`
	ClickedAt time.Time `json:"clickedAt" db:"clicked_at"`
}

// CampaignStats is the derived rate view served to analytics callers.
type CampaignStats struct {
	Total        int     `json:"total"`
	Sent         int     `json:"sent"`
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Failed       int     `json:"failed"`
	OpenRate     float64 `json:"openRate"`
	ClickRate    float64 `json:"clickRate"`
	DeliveryRate float64 `json:"deliveryRate"`
	FailureRate  float64 `json:"failureRate"`
}

// Stats computes the campaign's rate view. Open and click rates use
// delivered emails as denominator, delivery and failure rates the total
// recipient count. A zero denominator yields 0, never NaN.
func (c *Campaign) Stats() CampaignStats {
	stats := CampaignStats{
		Total:     c.TotalEmails,
		Sent:      c.SentCount,
		Delivered: c.DeliveredCount,
		Opened:    c.OpenedCount,
		Clicked:   c.ClickedCount,
		Failed:    c.FailedCount,
	}
	if c.DeliveredCount > 0 {
		stats.OpenRate = percentage(c.OpenedCount, c.DeliveredCount)
		stats.ClickRate = percentage(c.ClickedCount, c.DeliveredCount)
	}
	if c.TotalEmails > 0 {
		stats.DeliveryRate = percentage(c.DeliveredCount, c.TotalEmails)
		stats.FailureRate = percentage(c.FailedCount, c.TotalEmails)
	}
	return stats
}

// percentage rounds to two decimals so 1/3 reports as 33.33.
func percentage(part, whole int) float64 {
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
