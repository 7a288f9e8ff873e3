package mailing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store provides database operations for campaigns, email events, and
// tracked links. Every mutation is a single atomic statement; counters are
// true SQL increments, never read-modify-write round trips, because open
// and click hits on the same row arrive concurrently.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tracking store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// terminalRank is where statuses outside statusRank land in the SQL
// ordering. Terminal statuses rank highest so a late open or click never
// overwrites a bounce or failure.
const terminalRank = 9

// eventRank renders the CASE expression ordering email-event statuses
// inside SQL, driven by the same statusRank table the Go side exposes.
func eventRank(col string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CASE %s", col)
	for _, s := range statusOrder {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, statusRank[s])
	}
	fmt.Fprintf(&b, " ELSE %d END", terminalRank)
	return b.String()
}

// terminalStatusSet renders the absorbing statuses as a SQL IN list.
func terminalStatusSet() string {
	quoted := make([]string, len(terminalStatuses))
	for i, s := range terminalStatuses {
		quoted[i] = "'" + s + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// statusTransition renders the CASE expression deciding whether the
// incoming status held in param replaces email_events.status. An existing
// terminal status absorbs everything, an incoming terminal status applies
// only over sent or delivered, and anything else moves forward along the
// rank ordering or stays put.
func statusTransition(param string) string {
	return fmt.Sprintf(`CASE
				WHEN email_events.status IN %[2]s THEN email_events.status
				WHEN %[1]s IN %[2]s THEN
					CASE WHEN email_events.status IN ('%[5]s', '%[6]s') THEN %[1]s ELSE email_events.status END
				WHEN %[3]s > %[4]s THEN %[1]s
				ELSE email_events.status
			END`, param, terminalStatusSet(), eventRank(param), eventRank("email_events.status"),
		EventSent, EventDelivered)
}

// campaignRank orders campaign lifecycle statuses so transitions never
// regress: pending < sending < completed/failed.
const campaignRank = `CASE %s WHEN 'pending' THEN 0 WHEN 'sending' THEN 1 ELSE 2 END`

// CreateCampaign inserts a new campaign in pending status.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = CampaignPending
	}

	query := `INSERT INTO campaigns (id, user_id, subject, template, from_name, from_email,
		total_emails, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query, c.ID, c.UserID, c.Subject, c.Template,
		c.FromName, c.FromEmail, c.TotalEmails, c.Status, c.Metadata, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// MarkCampaignStatus advances the campaign lifecycle. Transitions only move
// forward; a stale caller trying to move a completed campaign back to
// sending is silently ignored. Terminal statuses stamp completed_at.
func (s *Store) MarkCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error {
	query := fmt.Sprintf(`UPDATE campaigns
		SET status = $2,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND `+campaignRank+` < `+campaignRank, "status", "$2")

	_, err := s.db.ExecContext(ctx, query, campaignID, status)
	if err != nil {
		return fmt.Errorf("mark campaign %s %s: %w", campaignID, status, err)
	}
	return nil
}

// AppendSendResult records the outcome of one dispatch attempt: the
// email_events row (upserted, since an open hit may already have created a
// stub for this tracking id), a log entry, and the campaign's sent or
// failed counter. A successful dispatch also counts as delivered until a
// bounce says otherwise.
func (s *Store) AppendSendResult(ctx context.Context, campaignID uuid.UUID, trackingID, email, name string, success bool, messageID, errMsg string) error {
	status := EventSent
	eventType := EventSent
	if !success {
		status = EventFailed
		eventType = EventFailed
	}

	// The conflict branch fills in the send-side columns on a row that a
	// racing tracking hit created first, keeping whatever status the hit
	// already advanced it to. That holds for a failed dispatch too: failed
	// is reachable only from sent or delivered, never over opened or
	// clicked.
	query := `INSERT INTO email_events
		(campaign_id, tracking_id, recipient_email, recipient_name, status, message_id, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (tracking_id) DO UPDATE SET
			campaign_id = EXCLUDED.campaign_id,
			recipient_email = EXCLUDED.recipient_email,
			recipient_name = EXCLUDED.recipient_name,
			message_id = EXCLUDED.message_id,
			error_message = EXCLUDED.error_message,
			status = ` + statusTransition("$5") + `,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, campaignID, trackingID, email, name, status, messageID, errMsg); err != nil {
		return fmt.Errorf("append send result %s: %w", trackingID, err)
	}

	logQuery := `INSERT INTO email_event_log (tracking_id, event_type, occurred_at) VALUES ($1, $2, NOW())`
	if _, err := s.db.ExecContext(ctx, logQuery, trackingID, eventType); err != nil {
		return fmt.Errorf("append send log %s: %w", trackingID, err)
	}

	counter := `UPDATE campaigns SET sent_count = sent_count + 1, delivered_count = delivered_count + 1 WHERE id = $1`
	if !success {
		counter = `UPDATE campaigns SET failed_count = failed_count + 1 WHERE id = $1`
	}
	if _, err := s.db.ExecContext(ctx, counter, campaignID); err != nil {
		return fmt.Errorf("bump campaign counters %s: %w", campaignID, err)
	}
	return nil
}

// SubEventMeta is the request context captured with a tracking hit.
type SubEventMeta struct {
	IPAddress string
	Device    string
	Browser   string
	OS        string
	Country   string
	City      string
	Region    string
	Timezone  string
	LinkURL   string
}

// RecordEmailEvent appends one sub-event for a tracking id and advances the
// event's top-level state. Safe to call concurrently and repeatedly for the
// same id: counters are SQL increments, status moves only forward, and a
// hit arriving before the sent record creates a stub row (campaign_id null)
// that the send loop later completes. Returns the row after the update.
func (s *Store) RecordEmailEvent(ctx context.Context, trackingID, eventType string, meta SubEventMeta) (*EmailEvent, error) {
	query := `INSERT INTO email_events
		(tracking_id, status, open_count, click_count, first_opened_at, last_opened_at, created_at, updated_at)
		VALUES ($1, $2,
			CASE WHEN $2 = 'opened' THEN 1 ELSE 0 END,
			CASE WHEN $2 = 'clicked' THEN 1 ELSE 0 END,
			CASE WHEN $2 = 'opened' THEN NOW() END,
			CASE WHEN $2 = 'opened' THEN NOW() END,
			NOW(), NOW())
		ON CONFLICT (tracking_id) DO UPDATE SET
			status = ` + statusTransition("$2") + `,
			open_count = email_events.open_count + CASE WHEN $2 = 'opened' THEN 1 ELSE 0 END,
			click_count = email_events.click_count + CASE WHEN $2 = 'clicked' THEN 1 ELSE 0 END,
			first_opened_at = COALESCE(email_events.first_opened_at, CASE WHEN $2 = 'opened' THEN NOW() END),
			last_opened_at = CASE WHEN $2 = 'opened' THEN NOW() ELSE email_events.last_opened_at END,
			updated_at = NOW()
		RETURNING id, campaign_id, tracking_id, recipient_email, recipient_name, status,
			open_count, click_count, first_opened_at, last_opened_at`

	event := &EmailEvent{}
	err := s.db.QueryRowContext(ctx, query, trackingID, eventType).Scan(
		&event.ID, &event.CampaignID, &event.TrackingID, &event.RecipientEmail,
		&event.RecipientName, &event.Status, &event.OpenCount, &event.ClickCount,
		&event.FirstOpenedAt, &event.LastOpenedAt)
	if err != nil {
		return nil, fmt.Errorf("record email event %s %s: %w", trackingID, eventType, err)
	}

	logQuery := `INSERT INTO email_event_log
		(tracking_id, event_type, ip_address, device, browser, os, country, city, region, timezone, link_url, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`
	_, err = s.db.ExecContext(ctx, logQuery, trackingID, eventType, meta.IPAddress,
		meta.Device, meta.Browser, meta.OS, meta.Country, meta.City, meta.Region, meta.Timezone, meta.LinkURL)
	if err != nil {
		return nil, fmt.Errorf("record email event log %s: %w", trackingID, err)
	}
	return event, nil
}

// SaveTrackedLinks persists the link mappings produced for one recipient.
func (s *Store) SaveTrackedLinks(ctx context.Context, links []*TrackedLink) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save tracked links: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO tracked_links (link_id, campaign_id, tracking_id, original_url, created_at)
		VALUES ($1, $2, $3, $4, NOW())`
	for _, link := range links {
		if _, err := tx.ExecContext(ctx, query, link.LinkID, link.CampaignID, link.TrackingID, link.OriginalURL); err != nil {
			return fmt.Errorf("save tracked link %s: %w", link.LinkID, err)
		}
	}
	return tx.Commit()
}

// RecordLinkClick bumps the link's counter, appends a click record, and
// returns the link so the handler can redirect and attribute the click to
// the owning email event. Unknown ids return ErrNotFound.
func (s *Store) RecordLinkClick(ctx context.Context, linkID string, meta SubEventMeta) (*TrackedLink, error) {
	query := `UPDATE tracked_links SET click_count = click_count + 1
		WHERE link_id = $1
		RETURNING link_id, campaign_id, tracking_id, original_url, click_count, created_at`

	link := &TrackedLink{}
	err := s.db.QueryRowContext(ctx, query, linkID).Scan(
		&link.LinkID, &link.CampaignID, &link.TrackingID, &link.OriginalURL,
		&link.ClickCount, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record link click %s: %w", linkID, err)
	}

	logQuery := `INSERT INTO link_clicks (link_id, ip_address, device, browser, os, country, city, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`
	if _, err := s.db.ExecContext(ctx, logQuery, linkID, meta.IPAddress, meta.Device,
		meta.Browser, meta.OS, meta.Country, meta.City); err != nil {
		return nil, fmt.Errorf("record link click log %s: %w", linkID, err)
	}
	return link, nil
}

// RecomputeCampaignAggregates refreshes the campaign's opened and clicked
// counters from the recipient rows. Always a fresh count, never an
// increment, so concurrent tracking hits cannot drift the totals. Opened
// counts every recipient who opened or clicked; a click implies an open
// even when the pixel never loaded.
func (s *Store) RecomputeCampaignAggregates(ctx context.Context, campaignID uuid.UUID) error {
	query := `UPDATE campaigns SET
		opened_count = (SELECT COUNT(*) FROM email_events WHERE campaign_id = $1 AND status IN ('opened', 'clicked')),
		clicked_count = (SELECT COUNT(*) FROM email_events WHERE campaign_id = $1 AND status = 'clicked'),
		bounced_count = (SELECT COUNT(*) FROM email_events WHERE campaign_id = $1 AND status = 'bounced')
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, campaignID); err != nil {
		return fmt.Errorf("recompute aggregates %s: %w", campaignID, err)
	}
	return nil
}

const campaignColumns = `id, user_id, subject, from_name, from_email, total_emails,
	sent_count, delivered_count, opened_count, clicked_count, failed_count, bounced_count,
	status, created_at, completed_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*Campaign, error) {
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.UserID, &c.Subject, &c.FromName, &c.FromEmail,
		&c.TotalEmails, &c.SentCount, &c.DeliveredCount, &c.OpenedCount,
		&c.ClickedCount, &c.FailedCount, &c.BouncedCount, &c.Status,
		&c.CreatedAt, &c.CompletedAt)
	return c, err
}

// GetCampaign retrieves one campaign. userID narrows the lookup when the
// caller supplied one; an empty userID matches any owner.
func (s *Store) GetCampaign(ctx context.Context, campaignID uuid.UUID, userID string) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 AND ($2 = '' OR user_id = $2)`

	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, campaignID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", campaignID, err)
	}
	return c, nil
}

// GetCampaigns lists campaigns newest first, optionally for one owner.
func (s *Store) GetCampaigns(ctx context.Context, userID string) ([]*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("get campaigns: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetCampaignEvents pages through a campaign's recipient-level events,
// newest first, optionally filtered by status. Returns the page plus the
// total matching count.
func (s *Store) GetCampaignEvents(ctx context.Context, campaignID uuid.UUID, status string, limit, offset int) ([]*EmailEvent, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM email_events WHERE campaign_id = $1 AND ($2 = '' OR status = $2)`
	if err := s.db.QueryRowContext(ctx, countQuery, campaignID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaign events %s: %w", campaignID, err)
	}

	query := `SELECT id, campaign_id, tracking_id, recipient_email, recipient_name, status,
		message_id, error_message, open_count, click_count, first_opened_at, last_opened_at, created_at
		FROM email_events WHERE campaign_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, campaignID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("get campaign events %s: %w", campaignID, err)
	}
	defer rows.Close()

	var events []*EmailEvent
	for rows.Next() {
		e := &EmailEvent{}
		err := rows.Scan(&e.ID, &e.CampaignID, &e.TrackingID, &e.RecipientEmail,
			&e.RecipientName, &e.Status, &e.MessageID, &e.ErrorMessage,
			&e.OpenCount, &e.ClickCount, &e.FirstOpenedAt, &e.LastOpenedAt, &e.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("get campaign events %s: %w", campaignID, err)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// TopLink is a clicked-link summary row for the campaign detail view.
type TopLink struct {
	OriginalURL string `json:"originalUrl"`
	ClickCount  int    `json:"clickCount"`
}

// GetTopLinks returns the campaign's most-clicked destinations. Link
// occurrences sharing a URL are rolled up here even though they track
// independently.
func (s *Store) GetTopLinks(ctx context.Context, campaignID uuid.UUID, limit int) ([]TopLink, error) {
	query := `SELECT original_url, SUM(click_count) AS clicks
		FROM tracked_links WHERE campaign_id = $1
		GROUP BY original_url HAVING SUM(click_count) > 0
		ORDER BY clicks DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("get top links %s: %w", campaignID, err)
	}
	defer rows.Close()

	links := []TopLink{}
	for rows.Next() {
		var l TopLink
		if err := rows.Scan(&l.OriginalURL, &l.ClickCount); err != nil {
			return nil, fmt.Errorf("get top links %s: %w", campaignID, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// HourlyBucket is one bar of the opens/clicks histogram.
type HourlyBucket struct {
	Hour   time.Time `json:"hour"`
	Opens  int       `json:"opens"`
	Clicks int       `json:"clicks"`
}

// GetHourlyTimeline buckets the campaign's open and click hits by hour.
func (s *Store) GetHourlyTimeline(ctx context.Context, campaignID uuid.UUID) ([]HourlyBucket, error) {
	query := `SELECT DATE_TRUNC('hour', l.occurred_at) AS hour,
		COUNT(*) FILTER (WHERE l.event_type = 'opened') AS opens,
		COUNT(*) FILTER (WHERE l.event_type = 'clicked') AS clicks
		FROM email_event_log l
		JOIN email_events e ON e.tracking_id = l.tracking_id
		WHERE e.campaign_id = $1 AND l.event_type IN ('opened', 'clicked')
		GROUP BY DATE_TRUNC('hour', l.occurred_at)
		ORDER BY hour`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get hourly timeline %s: %w", campaignID, err)
	}
	defer rows.Close()

	buckets := []HourlyBucket{}
	for rows.Next() {
		var b HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Opens, &b.Clicks); err != nil {
			return nil, fmt.Errorf("get hourly timeline %s: %w", campaignID, err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// BreakdownRow is one slice of a device or location breakdown.
type BreakdownRow struct {
	Label string `json:"label"`
	Total int    `json:"total"`
}

// GetDeviceBreakdown counts open and click hits by device class.
func (s *Store) GetDeviceBreakdown(ctx context.Context, campaignID uuid.UUID) ([]BreakdownRow, error) {
	query := `SELECT COALESCE(NULLIF(l.device, ''), 'Unknown') AS device, COUNT(*) AS total
		FROM email_event_log l
		JOIN email_events e ON e.tracking_id = l.tracking_id
		WHERE e.campaign_id = $1 AND l.event_type IN ('opened', 'clicked')
		GROUP BY device ORDER BY total DESC`
	return s.breakdown(ctx, query, campaignID)
}

// GetLocationBreakdown counts open and click hits by country.
func (s *Store) GetLocationBreakdown(ctx context.Context, campaignID uuid.UUID) ([]BreakdownRow, error) {
	query := `SELECT COALESCE(NULLIF(l.country, ''), 'Unknown') AS country, COUNT(*) AS total
		FROM email_event_log l
		JOIN email_events e ON e.tracking_id = l.tracking_id
		WHERE e.campaign_id = $1 AND l.event_type IN ('opened', 'clicked')
		GROUP BY country ORDER BY total DESC`
	return s.breakdown(ctx, query, campaignID)
}

func (s *Store) breakdown(ctx context.Context, query string, campaignID uuid.UUID) ([]BreakdownRow, error) {
	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("breakdown %s: %w", campaignID, err)
	}
	defer rows.Close()

	out := []BreakdownRow{}
	for rows.Next() {
		var r BreakdownRow
		if err := rows.Scan(&r.Label, &r.Total); err != nil {
			return nil, fmt.Errorf("breakdown %s: %w", campaignID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
