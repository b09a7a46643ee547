package livestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"coldtrack-sync/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var databaseScopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Options live store connection settings
type Options struct {
	DatabaseURL     string
	CredentialsPath string
	DatabaseSecret  string
	Timeout         time.Duration
	Location        *time.Location
}

// Client Firebase Realtime Database REST client
type Client struct {
	http   *resty.Client
	stream *resty.Client
	tokens oauth2.TokenSource
	secret string
	loc    *time.Location
	logger *zap.Logger
}

// NewClient builds a client. Service account credentials win over the legacy secret.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("live store database url is required")
	}

	c := &Client{
		secret: opts.DatabaseSecret,
		loc:    opts.Location,
		logger: logger,
	}
	if c.loc == nil {
		c.loc = time.Local
	}

	if opts.CredentialsPath != "" {
		data, err := os.ReadFile(opts.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read firebase credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, databaseScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse firebase credentials: %w", err)
		}
		c.tokens = oauth2.ReuseTokenSource(nil, creds.TokenSource)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.DatabaseURL, "/")

	c.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		OnBeforeRequest(c.authorize)

	// streams stay open indefinitely, no client timeout
	c.stream = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "text/event-stream").
		OnBeforeRequest(c.authorize)

	return c, nil
}

// authorize adds auth as a query parameter; Firebase redirects streams to
// another host and headers would not survive that hop.
func (c *Client) authorize(_ *resty.Client, r *resty.Request) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain firebase access token: %w", err)
		}
		r.SetQueryParam("access_token", tok.AccessToken)
		return nil
	}
	if c.secret != "" {
		r.SetQueryParam("auth", c.secret)
	}
	return nil
}

// Location used to map dates onto day nodes
func (c *Client) Location() *time.Location {
	return c.loc
}

// getNode fetches {path}.json; nil raw means the node does not exist
func (c *Client) getNode(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	var raw json.RawMessage
	req := c.http.R().SetContext(ctx).SetResult(&raw)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(nodeURL(path))
	if err != nil {
		return nil, fmt.Errorf("live store request %s failed: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("live store request %s returned %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if raw == nil {
		// SetResult is skipped for non-JSON content types
		raw = json.RawMessage(resp.Body())
	}
	if isNull(raw) {
		return nil, nil
	}
	return raw, nil
}

// Devices lists device ids (the children of /status)
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	raw, err := c.getNode(ctx, "status", map[string]string{"shallow": "true"})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []string{}, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, &ShapeError{Path: "status", Reason: err.Error()}
	}
	devices := make([]string, 0, len(children))
	for id := range children {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices, nil
}

// Events returns the events stored under the device's day node
func (c *Client) Events(ctx context.Context, deviceID string, date time.Time) ([]models.RawEvent, error) {
	path := EventDayPath(deviceID, date, c.loc)
	raw, err := c.getNode(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	events, errs := ParseEventDay(deviceID, raw)
	c.logShapeErrors(deviceID, errs)
	if events == nil {
		events = []models.RawEvent{}
	}
	return events, nil
}

// AllEvents returns every event in the device's tree (all days)
func (c *Client) AllEvents(ctx context.Context, deviceID string) ([]models.RawEvent, error) {
	raw, err := c.getNode(ctx, "eventos/"+deviceID, nil)
	if err != nil {
		return nil, err
	}
	events, errs := ParseEventTree(deviceID, raw)
	c.logShapeErrors(deviceID, errs)
	if events == nil {
		events = []models.RawEvent{}
	}
	return events, nil
}

// Event fetches a single event node; nil when it does not exist
func (c *Client) Event(ctx context.Context, deviceID string, date time.Time, eventID string) (*models.RawEvent, error) {
	raw, err := c.getNode(ctx, EventDayPath(deviceID, date, c.loc)+"/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	ev, err := ParseEventNode(deviceID, eventID, raw)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Readings returns the status readings of the device's day node
func (c *Client) Readings(ctx context.Context, deviceID string, date time.Time) ([]models.RawReading, error) {
	raw, err := c.getNode(ctx, StatusDayPath(deviceID, date, c.loc), nil)
	if err != nil {
		return nil, err
	}
	readings, errs := ParseReadingDay(deviceID, raw)
	c.logShapeErrors(deviceID, errs)
	if readings == nil {
		readings = []models.RawReading{}
	}
	return readings, nil
}

// AllReadings returns every status reading in the device's tree (all days)
func (c *Client) AllReadings(ctx context.Context, deviceID string) ([]models.RawReading, error) {
	raw, err := c.getNode(ctx, "status/"+deviceID, nil)
	if err != nil {
		return nil, err
	}
	readings, errs := ParseStatusTree(deviceID, raw)
	c.logShapeErrors(deviceID, errs)
	if readings == nil {
		readings = []models.RawReading{}
	}
	return readings, nil
}

// LiveSnapshot reads /status/{device}/live; nil when absent
func (c *Client) LiveSnapshot(ctx context.Context, deviceID string) (*models.LiveSnapshot, error) {
	raw, err := c.getNode(ctx, "status/"+deviceID+"/"+LiveKey, nil)
	if err != nil {
		return nil, err
	}
	return ParseLiveSnapshot(deviceID, raw)
}

func (c *Client) logShapeErrors(deviceID string, errs []error) {
	for _, err := range errs {
		c.logger.Warn("Skipping malformed live store node",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

// EventDayPath eventos/{device}/{yyyy}/{mm}/{dd}
func EventDayPath(deviceID string, date time.Time, loc *time.Location) string {
	return "eventos/" + deviceID + "/" + dayPath(date, loc)
}

// StatusDayPath status/{device}/{yyyy}/{mm}/{dd}
func StatusDayPath(deviceID string, date time.Time, loc *time.Location) string {
	return "status/" + deviceID + "/" + dayPath(date, loc)
}

func dayPath(date time.Time, loc *time.Location) string {
	if loc != nil {
		date = date.In(loc)
	}
	return fmt.Sprintf("%04d/%02d/%02d", date.Year(), int(date.Month()), date.Day())
}

func nodeURL(path string) string {
	return "/" + strings.Trim(path, "/") + ".json"
}
