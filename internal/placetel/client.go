package placetel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/peeteer1245/placetel-recording-downloader/internal/audit"
	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const userAgent = "placetel-recording-downloader/1.0"

const maxErrorBody = 2048

// HTTPError is returned for any response outside the accepted status set.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("placetel: %s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Client struct {
	httpClient *http.Client
	config     *config.Config
	audit      *audit.Log
	limiter    *rate.Limiter
	log        *logrus.Entry
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

type loggingTransport struct {
	base http.RoundTripper
	log  *logrus.Entry
}

func NewClient(logger *logrus.Logger, cfg *config.Config, auditLog *audit.Log, opts ...Option) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &loggingTransport{
				base: http.DefaultTransport,
				log:  logger.WithField("component", "placetel_transport"),
			},
		},
		config:  cfg,
		audit:   auditLog,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.WithField("component", "placetel_client"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Audit() *audit.Log {
	return c.audit
}

func (c *Client) ListPage(ctx context.Context, page int) ([]models.Recording, error) {
	url := expand(c.config.ListPageURL, "{page}", strconv.Itoa(page))
	resp, err := c.do(ctx, http.MethodGet, url, isSuccess)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var recordings []models.Recording
	if err := json.NewDecoder(resp.Body).Decode(&recordings); err != nil {
		c.audit.Record(c.now(), url, resp.StatusCode, models.TagFailed)
		return nil, c.fail(fmt.Errorf("placetel: decode page %d: %w", page, err))
	}
	c.audit.Record(c.now(), url, resp.StatusCode, models.TagGet)

	c.log.WithFields(logrus.Fields{
		"page":  page,
		"count": len(recordings),
	}).Debug("Fetched recordings page")
	return recordings, nil
}

func (c *Client) GetRecording(ctx context.Context, id int64) (models.Recording, error) {
	url := expand(c.config.GetRecordingURL, "{id}", strconv.FormatInt(id, 10))
	resp, err := c.do(ctx, http.MethodGet, url, isSuccess)
	if err != nil {
		return models.Recording{}, err
	}
	defer resp.Body.Close()

	var rec models.Recording
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		c.audit.Record(c.now(), url, resp.StatusCode, models.TagFailed)
		return models.Recording{}, c.fail(fmt.Errorf("placetel: decode recording %d: %w", id, err))
	}
	c.audit.Record(c.now(), url, resp.StatusCode, models.TagGet)
	return rec, nil
}

// Download fetches the audio payload. The caller must close the body. The
// call is audited once the body is read to the end, fails, or is closed
// early; a body that is not fully received counts as a failed request and
// is left to the caller to report.
func (c *Client) Download(ctx context.Context, rec models.Recording) (io.ReadCloser, error) {
	if rec.FileURL == "" {
		c.audit.Record(c.now(), fmt.Sprintf("recording %d (no file url)", rec.ID), 0, models.TagFailed)
		return nil, c.fail(fmt.Errorf("placetel: recording %d has no file url", rec.ID))
	}
	resp, err := c.do(ctx, http.MethodGet, rec.FileURL, isSuccess)
	if err != nil {
		return nil, err
	}
	return &auditedBody{
		body:   resp.Body,
		url:    rec.FileURL,
		status: resp.StatusCode,
		client: c,
	}, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	url := expand(c.config.DeleteRecordingURL, "{id}", strconv.FormatInt(id, 10))
	resp, err := c.do(ctx, http.MethodDelete, url, func(status int) bool {
		return status == http.StatusOK || status == http.StatusNoContent
	})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.audit.Record(c.now(), url, resp.StatusCode, models.TagDelete)
	return resp.Body.Close()
}

// do issues exactly one request. Failures are audited here; on success the
// caller records the entry once the response body has been consumed.
func (c *Client) do(ctx context.Context, method, url string, accept func(int) bool) (*http.Response, error) {
	log := c.log.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	})

	if err := c.limiter.Wait(ctx); err != nil {
		c.audit.Record(c.now(), url, 0, models.TagFailed)
		return nil, c.fail(fmt.Errorf("placetel: %s %s: %w", method, url, err))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		c.audit.Record(c.now(), url, 0, models.TagFailed)
		return nil, c.fail(fmt.Errorf("placetel: build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", c.config.AuthToken)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", "application/json, */*")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("Request failed")
		c.audit.Record(c.now(), url, 0, models.TagFailed)
		return nil, c.fail(fmt.Errorf("placetel: %s %s: %w", method, url, err))
	}

	if !accept(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		log.WithField("status_code", resp.StatusCode).Error("Unexpected response status")
		c.audit.Record(c.now(), url, resp.StatusCode, models.TagFailed)
		return nil, c.fail(&HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	return resp, nil
}

// fail dumps the audit trail and hands err back so call sites can return it.
func (c *Client) fail(err error) error {
	c.audit.Dump()
	return err
}

type auditedBody struct {
	body   io.ReadCloser
	url    string
	status int
	client *Client
	done   bool
}

func (b *auditedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	switch {
	case errors.Is(err, io.EOF):
		b.finish(models.TagGet)
	case err != nil:
		b.client.log.WithError(err).WithField("url", b.url).Error("Download interrupted")
		b.finish(models.TagFailed)
	}
	return n, err
}

func (b *auditedBody) Close() error {
	b.finish(models.TagFailed)
	return b.body.Close()
}

func (b *auditedBody) finish(tag models.AuditTag) {
	if b.done {
		return
	}
	b.done = true
	b.client.audit.Record(b.client.now(), b.url, b.status, tag)
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func expand(template, placeholder, value string) string {
	return strings.ReplaceAll(template, placeholder, value)
}
