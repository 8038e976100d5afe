package thingiverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "thingmirror/pkg/errors"
	"thingmirror/pkg/logger"
	"thingmirror/pkg/ratelimit"
)

const userAgent = "thingmirror/1.0"

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the Thingiverse API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		limiter:    limiter,
		logger:     log,
	}
}

// GetThing fetches a thing by id
func (c *Client) GetThing(ctx context.Context, id uint64) (*Thing, error) {
	var thing Thing
	if err := c.getJSON(ctx, ThingURL(c.baseURL, id), &thing); err != nil {
		return nil, err
	}
	return &thing, nil
}

// GetImages fetches the image listing at the thing's images_url
func (c *Client) GetImages(ctx context.Context, imagesURL string) ([]Image, error) {
	var images []Image
	if err := c.getJSON(ctx, imagesURL, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// GetFiles fetches the file listing at the thing's files_url
func (c *Client) GetFiles(ctx context.Context, filesURL string) ([]File, error) {
	var files []File
	if err := c.getJSON(ctx, filesURL, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Download streams the body at url into w and returns the byte count.
// Non-2xx responses are returned as typed errors before anything is written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, url); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read download body: %v", err)
	}

	c.logger.DebugWithFields("download completed", map[string]interface{}{
		"url":   url,
		"bytes": n,
	})
	return n, nil
}

// get performs a paced GET request
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" && sameHost(c.baseURL, url) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, float64(duration.Milliseconds()))
	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, url); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := errs.FromStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    url,
		"type":   string(apiErr.Type),
	}

	switch apiErr.Type {
	case errs.ErrorTypeNotFound, errs.ErrorTypeForbidden:
		c.logger.DebugWithFields("resource unavailable", fields)
	case errs.ErrorTypeAuth:
		c.logger.ErrorWithFields("authentication rejected, check the API token", fields)
	default:
		c.logger.WarnWithFields("unexpected API status", fields)
	}
	return apiErr
}

// IsUnauthorized reports whether err is a rejected token.
func IsUnauthorized(err error) bool {
	var apiErr *errs.Error
	return errors.As(err, &apiErr) && apiErr.Type == errs.ErrorTypeAuth
}

// String implements fmt.Stringer for log fields.
func (t *Thing) String() string {
	return fmt.Sprintf("thing %d (%s)", t.ID, t.Name)
}
