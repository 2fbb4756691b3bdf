// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package supplier is the HTTP client for the content supplier (the
// generation orchestrator). It fetches pages of generated images for a
// user and submits new generation jobs. Empty and partial pages are
// normal; a supplier outage surfaces as an error the engine converts
// into a user-visible notice while the existing deck stays consumable.
package supplier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// ErrUnavailable wraps transport-level failures and supplier 5xx
// responses: the supplier as a whole is unreachable, not one bad page.
var ErrUnavailable = errors.New("supplier unavailable")

// Config points the client at the supplier.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the supplier's REST surface. Safe for concurrent use.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// imagePage is the supplier's wire format for an image listing.
type imagePage struct {
	Images []wireImage `json:"images"`
	Count  int         `json:"count"`
}

type wireImage struct {
	ImageID   string            `json:"image_id"`
	URL       string            `json:"url"`
	BrandID   string            `json:"brand_id"`
	JobID     string            `json:"job_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// jobAccepted is the supplier's response to a submitted generation job.
type jobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// New creates a supplier client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	name := "supplier"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("SUPPLIER: Breaker state change")
			metrics.RecordBreakerState(name, to.String())
		},
	})

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// FetchBatch requests up to count content items for the user. The
// supplier may return fewer, or none; both are valid responses, not
// errors. Brand labels are mapped onto tiers relative to the requesting
// user.
func (c *Client) FetchBatch(ctx context.Context, userID string, count int) ([]models.ContentItem, error) {
	url := fmt.Sprintf("%s/images/%s?limit=%d", c.cfg.URL, userID, count)

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, url, nil)
	metrics.RecordSupplierRequest("fetch_page", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var page imagePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode image page: %w", err)
	}

	items := make([]models.ContentItem, 0, len(page.Images))
	for _, img := range page.Images {
		items = append(items, models.ContentItem{
			ID:        img.ImageID,
			MediaURL:  img.URL,
			Tier:      models.TierFromBrand(img.BrandID, userID),
			JobID:     img.JobID,
			Metadata:  img.Metadata,
			CreatedAt: img.CreatedAt,
		})
	}

	logging.Debug().
		Str("user_id", userID).
		Int("requested", count).
		Int("received", len(items)).
		Msg("SUPPLIER: Fetched page")
	return items, nil
}

// RequestGeneration submits a generation job and returns its ID. Fresh
// items arrive through later FetchBatch pages once the job completes.
func (c *Client) RequestGeneration(ctx context.Context, req models.GenerationRequest) (string, error) {
	if req.NumImages <= 0 {
		req.NumImages = 1
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, c.cfg.URL+"/jobs", payload)
	metrics.RecordSupplierRequest("submit_job", time.Since(start), err)
	if err != nil {
		return "", err
	}

	var accepted jobAccepted
	if err := json.Unmarshal(body, &accepted); err != nil {
		return "", fmt.Errorf("decode job response: %w", err)
	}

	logging.Info().
		Str("job_id", accepted.JobID).
		Str("user_id", req.UserID).
		Int("num_images", req.NumImages).
		Msg("SUPPLIER: Generation job submitted")
	return accepted.JobID, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		default:
			return nil, fmt.Errorf("supplier status %d: %s", resp.StatusCode, truncate(data, 200))
		}
	})
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
