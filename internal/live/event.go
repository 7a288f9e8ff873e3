package live

import "time"

// Event types pushed over the live channel. Progress, open, click, and
// complete events go to every connected client; campaign-update events are
// scoped to clients watching that campaign.
const (
	EventCampaignUpdate = "campaign-update"
	EventProgress       = "email-progress"
	EventOpen           = "email-open"
	EventClick          = "email-click"
	EventComplete       = "email-complete"
)

// Event is one live-channel message. Stats carries the campaign's derived
// rate view on campaign-update and complete events; it is untyped here to
// keep this package free of a dependency on the mailing models.
type Event struct {
	Type       string    `json:"type"`
	CampaignID string    `json:"campaignId,omitempty"`
	TrackingID string    `json:"trackingId,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Stats      any       `json:"stats,omitempty"`
}
