package tracking

import "github.com/google/uuid"

// NewTrackingID returns a globally unique identifier for a single
// (campaign, recipient) send attempt. Embedded in the open-pixel URL.
func NewTrackingID() string {
	return uuid.New().String()
}

// NewLinkID returns a short identifier for one rewritten hyperlink.
// The first UUID segment (8 hex chars, 32 random bits) is plenty within
// a single campaign's link count.
func NewLinkID() string {
	return uuid.New().String()[:8]
}
