package api

import (
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jashank06/Email-Sender-App/internal/live"
	"github.com/Jashank06/Email-Sender-App/internal/mailing"
	"github.com/Jashank06/Email-Sender-App/internal/tracking"
)

// 1x1 transparent GIF
var pixelGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// HandleOpen records an open hit and serves the beacon. The pixel is
// always served with status 200, whether or not the tracking id is known
// and whatever goes wrong in bookkeeping: a broken image in the
// recipient's mail client is never an acceptable failure mode, and the
// response must not reveal which ids exist.
func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingId")
	meta := h.requestMeta(r)

	event, err := h.store.RecordEmailEvent(r.Context(), trackingID, mailing.EventOpened, meta)
	if err != nil {
		log.Printf("[Tracking] record open %s: %v", trackingID, err)
		h.servePixel(w)
		return
	}

	if event.CampaignID != nil {
		campaignID := *event.CampaignID
		if err := h.store.RecomputeCampaignAggregates(r.Context(), campaignID); err != nil {
			log.Printf("[Tracking] recompute %s: %v", campaignID, err)
		}
		h.broadcaster.Publish(r.Context(), live.Event{
			Type:       live.EventOpen,
			CampaignID: campaignID.String(),
			TrackingID: trackingID,
			Recipient:  event.RecipientEmail,
			Timestamp:  time.Now(),
		})
		h.broadcastCampaignUpdate(r, campaignID.String())
	}

	h.servePixel(w)
}

// HandleClick resolves the link id, records the click against both the
// link and its owning email event, and redirects. An unknown id is a 404;
// any other bookkeeping failure still redirects, since getting the
// recipient to their destination outranks analytics.
func (h *Handlers) HandleClick(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkId")
	meta := h.requestMeta(r)

	link, err := h.store.RecordLinkClick(r.Context(), linkID, meta)
	if err == mailing.ErrNotFound {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[Tracking] record click %s: %v", linkID, err)
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	meta.LinkURL = link.OriginalURL
	event, err := h.store.RecordEmailEvent(r.Context(), link.TrackingID, mailing.EventClicked, meta)
	if err != nil {
		log.Printf("[Tracking] record click event %s: %v", link.TrackingID, err)
	} else if event.CampaignID != nil {
		campaignID := *event.CampaignID
		if err := h.store.RecomputeCampaignAggregates(r.Context(), campaignID); err != nil {
			log.Printf("[Tracking] recompute %s: %v", campaignID, err)
		}
		h.broadcaster.Publish(r.Context(), live.Event{
			Type:       live.EventClick,
			CampaignID: campaignID.String(),
			TrackingID: link.TrackingID,
			Recipient:  event.RecipientEmail,
			Timestamp:  time.Now(),
		})
		h.broadcastCampaignUpdate(r, campaignID.String())
	}

	http.Redirect(w, r, link.OriginalURL, http.StatusFound)
}

func (h *Handlers) requestMeta(r *http.Request) mailing.SubEventMeta {
	ip := tracking.ClientIP(r)
	device := tracking.ParseUserAgent(r.UserAgent())
	location := h.locator.Locate(ip)
	return mailing.SubEventMeta{
		IPAddress: ip,
		Device:    device.Device,
		Browser:   device.Browser,
		OS:        device.OS,
		Country:   location.Country,
		City:      location.City,
		Region:    location.Region,
		Timezone:  location.Timezone,
	}
}

func (h *Handlers) broadcastCampaignUpdate(r *http.Request, campaignID string) {
	id, err := parseCampaignID(campaignID)
	if err != nil {
		return
	}
	campaign, err := h.store.GetCampaign(r.Context(), id, "")
	if err != nil {
		log.Printf("[Tracking] load campaign %s: %v", campaignID, err)
		return
	}
	h.broadcaster.Publish(r.Context(), live.Event{
		Type:       live.EventCampaignUpdate,
		CampaignID: campaignID,
		Timestamp:  time.Now(),
		Stats:      campaign.Stats(),
	})
}

func (h *Handlers) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
