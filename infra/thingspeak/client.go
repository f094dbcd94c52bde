// Package thingspeak sends samples to a ThingSpeak channel and reads them
// back. Channel fields are mapped as follows: field1 engine temperature,
// field2 RPM, field3 speed, field4 fuel liters, field5 fuel percent.
package thingspeak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/logger"
)

// DefaultBaseURL is the public ThingSpeak API.
const DefaultBaseURL = "https://api.thingspeak.com"

// ErrRateLimited is returned when ThingSpeak rejects an update, which it
// signals with an entry id of 0, or when MinInterval has not elapsed since
// the last accepted update. It wraps telemetry.ErrThrottled.
var ErrRateLimited = fmt.Errorf("thingspeak: update rejected (rate limited): %w", telemetry.ErrThrottled)

// Config holds the channel credentials.
type Config struct {
	APIKey     string `json:"api_key"`
	ReadAPIKey string `json:"read_api_key"`
	ChannelID  string `json:"channel_id"`
	BaseURL    string `json:"base_url"`
	// TankLiters is used to rebuild samples read from the channel.
	TankLiters  float64       `json:"tank_liters"`
	Timeout     time.Duration `json:"timeout"`
	MinInterval time.Duration `json:"min_interval"`
}

// Validate checks that the client can at least write or read.
func (c Config) Validate() error {
	if c.APIKey == "" && c.ChannelID == "" {
		return fmt.Errorf("thingspeak: api_key or channel_id is required")
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return fmt.Errorf("thingspeak: base_url: %w", err)
		}
	}
	return nil
}

// Client talks to the ThingSpeak REST API.
type Client struct {
	cfg        Config
	base       string
	httpClient *http.Client
	log        logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

// NewClient creates a ThingSpeak client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.TankLiters <= 0 {
		cfg.TankLiters = 50
	}
	return &Client{
		cfg:        cfg,
		base:       base,
		httpClient: &http.Client{Timeout: factory.DurationOr(cfg.Timeout, 10*time.Second)},
		log:        logger.New("thingspeak"),
		now:        time.Now,
	}, nil
}

// Send posts the sample as a channel update.
func (c *Client) Send(ctx context.Context, s model.Sample) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("thingspeak: no write api key configured")
	}
	if c.cfg.MinInterval > 0 {
		c.mu.Lock()
		early := !c.lastSent.IsZero() && c.now().Sub(c.lastSent) < c.cfg.MinInterval
		c.mu.Unlock()
		if early {
			return ErrRateLimited
		}
	}

	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("field1", strconv.Itoa(s.EngineTempC))
	q.Set("field2", strconv.Itoa(s.RPM))
	q.Set("field3", strconv.Itoa(s.SpeedKmH))
	q.Set("field4", strconv.FormatFloat(s.FuelLiters, 'f', 2, 64))
	q.Set("field5", strconv.FormatFloat(s.FuelPercent, 'f', 1, 64))

	body, err := c.get(ctx, c.base+"/update?"+q.Encode())
	if err != nil {
		return err
	}
	entry := strings.TrimSpace(string(body))
	if entry == "0" {
		return ErrRateLimited
	}
	if c.cfg.MinInterval > 0 {
		c.mu.Lock()
		c.lastSent = c.now()
		c.mu.Unlock()
	}
	c.log.Debugf("update accepted as entry %s", entry)
	return nil
}

type feedsResponse struct {
	Feeds []feed `json:"feeds"`
}

type feed struct {
	CreatedAt time.Time `json:"created_at"`
	EntryID   int64     `json:"entry_id"`
	Field1    *string   `json:"field1"`
	Field2    *string   `json:"field2"`
	Field3    *string   `json:"field3"`
	Field4    *string   `json:"field4"`
	Field5    *string   `json:"field5"`
}

// Fetch returns up to limit of the most recent channel entries, oldest
// first. Elapsed is measured from the first returned entry.
func (c *Client) Fetch(ctx context.Context, limit int) ([]model.Sample, error) {
	if c.cfg.ChannelID == "" {
		return nil, fmt.Errorf("thingspeak: no channel_id configured")
	}
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("results", strconv.Itoa(limit))
	if c.cfg.ReadAPIKey != "" {
		q.Set("api_key", c.cfg.ReadAPIKey)
	}
	u := fmt.Sprintf("%s/channels/%s/feeds.json?%s", c.base, url.PathEscape(c.cfg.ChannelID), q.Encode())
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp feedsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	if len(resp.Feeds) == 0 {
		return nil, telemetry.ErrNoHistory
	}

	start := resp.Feeds[0].CreatedAt
	out := make([]model.Sample, 0, len(resp.Feeds))
	for _, f := range resp.Feeds {
		s, err := f.sample(start, c.cfg.TankLiters)
		if err != nil {
			c.log.Warnf("skip entry %d: %v", f.EntryID, err)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, telemetry.ErrNoHistory
	}
	return out, nil
}

func (f feed) sample(start time.Time, tank float64) (model.Sample, error) {
	vals := make([]float64, 5)
	for i, p := range []*string{f.Field1, f.Field2, f.Field3, f.Field4, f.Field5} {
		if p == nil || *p == "" {
			return model.Sample{}, fmt.Errorf("field%d missing", i+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(*p), 64)
		if err != nil {
			return model.Sample{}, fmt.Errorf("field%d: %w", i+1, err)
		}
		vals[i] = v
	}
	temp, rpm, speed, liters := vals[0], vals[1], vals[2], vals[3]
	s := model.NewSample(rpm, speed, liters, tank, temp, f.CreatedAt.Sub(start), rpm > 0)
	s.FuelPercent = vals[4]
	return s, s.Validate()
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thingspeak returned status %d", resp.StatusCode)
	}
	return body, nil
}

func init() {
	_ = telemetry.RegisterSink("thingspeak", func(conf map[string]any) (telemetry.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		cl, err := NewClient(c)
		if err != nil {
			return nil, err
		}
		return cl, nil
	})
}
