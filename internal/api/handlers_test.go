package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jashank06/Email-Sender-App/internal/live"
	"github.com/Jashank06/Email-Sender-App/internal/mailing"
	"github.com/Jashank06/Email-Sender-App/internal/tracking"
)

type stubStore struct {
	campaigns map[uuid.UUID]*mailing.Campaign
	events    map[string]*mailing.EmailEvent
	links     map[string]*mailing.TrackedLink

	recordedEvents []string
	recomputed     []uuid.UUID
	savedLinks     []*mailing.TrackedLink
	sendLog        []string
}

func newStubStore() *stubStore {
	return &stubStore{
		campaigns: make(map[uuid.UUID]*mailing.Campaign),
		events:    make(map[string]*mailing.EmailEvent),
		links:     make(map[string]*mailing.TrackedLink),
	}
}

func (s *stubStore) RecordEmailEvent(_ context.Context, trackingID, eventType string, _ mailing.SubEventMeta) (*mailing.EmailEvent, error) {
	s.recordedEvents = append(s.recordedEvents, eventType+":"+trackingID)
	if evt, ok := s.events[trackingID]; ok {
		return evt, nil
	}
	// Stub row for an unknown id, the way the store upserts one.
	return &mailing.EmailEvent{TrackingID: trackingID, Status: eventType}, nil
}

func (s *stubStore) RecordLinkClick(_ context.Context, linkID string, _ mailing.SubEventMeta) (*mailing.TrackedLink, error) {
	link, ok := s.links[linkID]
	if !ok {
		return nil, mailing.ErrNotFound
	}
	link.ClickCount++
	return link, nil
}

func (s *stubStore) RecomputeCampaignAggregates(_ context.Context, id uuid.UUID) error {
	s.recomputed = append(s.recomputed, id)
	return nil
}

func (s *stubStore) GetCampaign(_ context.Context, id uuid.UUID, _ string) (*mailing.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, mailing.ErrNotFound
	}
	return c, nil
}

func (s *stubStore) GetCampaigns(_ context.Context, userID string) ([]*mailing.Campaign, error) {
	var out []*mailing.Campaign
	for _, c := range s.campaigns {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubStore) GetCampaignEvents(_ context.Context, id uuid.UUID, status string, limit, offset int) ([]*mailing.EmailEvent, int, error) {
	var out []*mailing.EmailEvent
	for _, e := range s.events {
		if e.CampaignID != nil && *e.CampaignID == id && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (s *stubStore) GetTopLinks(context.Context, uuid.UUID, int) ([]mailing.TopLink, error) {
	return []mailing.TopLink{}, nil
}

func (s *stubStore) GetHourlyTimeline(context.Context, uuid.UUID) ([]mailing.HourlyBucket, error) {
	return []mailing.HourlyBucket{}, nil
}

func (s *stubStore) GetDeviceBreakdown(context.Context, uuid.UUID) ([]mailing.BreakdownRow, error) {
	return []mailing.BreakdownRow{{Label: "Desktop", Total: 2}}, nil
}

func (s *stubStore) GetLocationBreakdown(context.Context, uuid.UUID) ([]mailing.BreakdownRow, error) {
	return []mailing.BreakdownRow{}, nil
}

// Orchestrator-side methods so one stub serves both interfaces.

func (s *stubStore) CreateCampaign(_ context.Context, c *mailing.Campaign) error {
	c.ID = uuid.New()
	c.Status = mailing.CampaignPending
	s.campaigns[c.ID] = c
	return nil
}

func (s *stubStore) MarkCampaignStatus(_ context.Context, id uuid.UUID, status string) error {
	s.campaigns[id].Status = status
	return nil
}

func (s *stubStore) AppendSendResult(_ context.Context, id uuid.UUID, _, email, _ string, success bool, _, _ string) error {
	c := s.campaigns[id]
	if success {
		c.SentCount++
		c.DeliveredCount++
		s.sendLog = append(s.sendLog, "sent:"+email)
	} else {
		c.FailedCount++
		s.sendLog = append(s.sendLog, "failed:"+email)
	}
	return nil
}

func (s *stubStore) SaveTrackedLinks(_ context.Context, links []*mailing.TrackedLink) error {
	s.savedLinks = append(s.savedLinks, links...)
	return nil
}

type captureBroadcaster struct {
	events []live.Event
}

func (c *captureBroadcaster) Publish(_ context.Context, evt live.Event) {
	c.events = append(c.events, evt)
}

type nopMailer struct{}

func (nopMailer) Send(_ context.Context, msg *mailing.Message) (string, error) {
	return "msg-" + msg.To, nil
}

func setupHandlers(store *stubStore) (*Handlers, *captureBroadcaster) {
	bc := &captureBroadcaster{}
	orch := mailing.NewOrchestrator(store, mailing.NewTemplateService(), bc, "https://track.example.com")
	h := NewHandlers(store, orch, bc, tracking.NopLocator{}, nil, 0)
	h.newMailer = func(provider, email, password string) (mailing.Mailer, error) {
		return nopMailer{}, nil
	}
	return h, bc
}

func seedCampaign(store *stubStore) *mailing.Campaign {
	c := &mailing.Campaign{
		ID: uuid.New(), UserID: "user-1", Subject: "s", Status: mailing.CampaignSending,
		TotalEmails: 2, SentCount: 2, DeliveredCount: 2, OpenedCount: 1,
		CreatedAt: time.Now(),
	}
	store.campaigns[c.ID] = c
	return c
}

func TestHandleOpenKnownID(t *testing.T) {
	store := newStubStore()
	c := seedCampaign(store)
	store.events["tid-1"] = &mailing.EmailEvent{
		CampaignID: &c.ID, TrackingID: "tid-1",
		RecipientEmail: "a@example.com", Status: mailing.EventOpened,
	}
	h, bc := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/track/open/tid-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	assert.Len(t, pixelGIF, 43)

	assert.Equal(t, []string{"opened:tid-1"}, store.recordedEvents)
	assert.Equal(t, []uuid.UUID{c.ID}, store.recomputed)

	require.Len(t, bc.events, 2)
	assert.Equal(t, live.EventOpen, bc.events[0].Type)
	assert.Equal(t, "a@example.com", bc.events[0].Recipient)
	assert.Equal(t, live.EventCampaignUpdate, bc.events[1].Type)
	assert.NotNil(t, bc.events[1].Stats)
}

func TestHandleOpenUnknownIDStillServesPixel(t *testing.T) {
	store := newStubStore()
	h, bc := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/track/open/who-knows", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	assert.Empty(t, store.recomputed, "no campaign to recompute for a stub event")
	assert.Empty(t, bc.events)
}

func TestHandleClick(t *testing.T) {
	store := newStubStore()
	c := seedCampaign(store)
	store.links["abcd1234"] = &mailing.TrackedLink{
		LinkID: "abcd1234", CampaignID: c.ID, TrackingID: "tid-1",
		OriginalURL: "https://shop.example.com/sale",
	}
	store.events["tid-1"] = &mailing.EmailEvent{
		CampaignID: &c.ID, TrackingID: "tid-1",
		RecipientEmail: "a@example.com", Status: mailing.EventClicked,
	}
	h, bc := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/track/click/abcd1234", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://shop.example.com/sale", rec.Header().Get("Location"))
	assert.Equal(t, 1, store.links["abcd1234"].ClickCount)
	assert.Equal(t, []string{"clicked:tid-1"}, store.recordedEvents)

	require.Len(t, bc.events, 2)
	assert.Equal(t, live.EventClick, bc.events[0].Type)
	assert.Equal(t, live.EventCampaignUpdate, bc.events[1].Type)
}

func TestHandleClickUnknownID(t *testing.T) {
	store := newStubStore()
	h, _ := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/track/click/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestHandleSendEmailsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing everything", `{}`},
		{"missing recipients", `{"provider":"gmail","email":"s@x.com","password":"p","subject":"s","template":"t"}`},
		{"missing template", `{"provider":"gmail","email":"s@x.com","password":"p","subject":"s","recipients":[{"email":"a@x.com","name":"A"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore()
			h, _ := setupHandlers(store)
			router := SetupRoutes(h, nil)

			req := httptest.NewRequest("POST", "/api/send-emails", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, store.campaigns, "no campaign may be created for a refused batch")
		})
	}
}

func TestHandleSendEmails(t *testing.T) {
	store := newStubStore()
	h, _ := setupHandlers(store)
	router := SetupRoutes(h, nil)

	body := `{"provider":"gmail","email":"sender@x.com","password":"p","subject":"Hi {{name}}",
		"template":"<p>Hello {{name}}</p>","senderName":"S","delayMs":0,
		"recipients":[{"email":"a@x.com","name":"A"},{"email":"b@x.com","name":"B"}]}`
	req := httptest.NewRequest("POST", "/api/send-emails", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success       bool                      `json:"success"`
		CampaignID    uuid.UUID                 `json:"campaignId"`
		TotalContacts int                       `json:"totalContacts"`
		SuccessCount  int                       `json:"successCount"`
		FailedCount   int                       `json:"failedCount"`
		Results       []mailing.RecipientResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalContacts)
	assert.Equal(t, 2, resp.SuccessCount)
	assert.Equal(t, 0, resp.FailedCount)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "msg-a@x.com", resp.Results[0].MessageID)

	campaign := store.campaigns[resp.CampaignID]
	require.NotNil(t, campaign)
	assert.Equal(t, mailing.CampaignCompleted, campaign.Status)
	assert.Equal(t, 2, campaign.SentCount)
}

func TestSendDelayUsesConfiguredDefault(t *testing.T) {
	h := &Handlers{defaultDelay: 1500 * time.Millisecond}
	zero, quarter := 0, 250

	tests := []struct {
		name    string
		delayMs *int
		want    time.Duration
	}{
		{"absent delayMs falls back to the configured default", nil, 1500 * time.Millisecond},
		{"explicit zero disables the pause", &zero, 0},
		{"explicit value wins over the default", &quarter, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.sendDelay(&SendEmailsRequest{DelayMs: tt.delayMs})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleGetCampaign(t *testing.T) {
	store := newStubStore()
	c := seedCampaign(store)
	h, _ := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/api/campaigns/"+c.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Campaign mailing.Campaign      `json:"campaign"`
		Stats    mailing.CampaignStats `json:"stats"`
		TopLinks []mailing.TopLink     `json:"topLinks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, c.ID, resp.Campaign.ID)
	assert.Equal(t, 50.0, resp.Stats.OpenRate)
	assert.NotNil(t, resp.TopLinks)
}

func TestHandleGetCampaignNotFound(t *testing.T) {
	store := newStubStore()
	h, _ := setupHandlers(store)
	router := SetupRoutes(h, nil)

	for _, path := range []string{
		"/api/campaigns/" + uuid.NewString(),
		"/api/campaigns/not-a-uuid",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHandleCampaignStats(t *testing.T) {
	store := newStubStore()
	c := seedCampaign(store)
	h, _ := setupHandlers(store)
	router := SetupRoutes(h, nil)

	req := httptest.NewRequest("GET", "/api/campaigns/"+c.ID.String()+"/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats   mailing.CampaignStats  `json:"stats"`
		Devices []mailing.BreakdownRow `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 50.0, resp.Stats.OpenRate)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "Desktop", resp.Devices[0].Label)
}
