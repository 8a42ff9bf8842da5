package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"asciimap/internal/tile"
)

const (
	DefaultVectorURL = "http://a.tiles.mapbox.com/v4/mapbox.mapbox-streets-v7/{z}/{x}/{y}.mvt?access_token={token}"
	DefaultRasterURL = "https://api.mapbox.com/styles/v1/mapbox/satellite-v9/tiles/256/{z}/{x}/{y}?access_token={token}"

	maxBackoff = 30 * time.Second
)

type HTTPOptions struct {
	VectorURL string
	RasterURL string
	Token     string
	Timeout   time.Duration
	// Retries is the number of attempts made for 5xx responses.
	Retries int
	Backoff time.Duration
}

// HTTPSource fetches tiles from two templated endpoints. Templates may use
// {z}, {x}, {y} and {token}.
type HTTPSource struct {
	client    *http.Client
	templates map[tile.Kind]string
	token     string
	retries   int
	backoff   time.Duration
	logger    *zap.Logger
}

func NewHTTPSource(opts HTTPOptions, logger *zap.Logger) *HTTPSource {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &HTTPSource{
		client: &http.Client{Timeout: opts.Timeout},
		templates: map[tile.Kind]string{
			tile.Vector: opts.VectorURL,
			tile.Raster: opts.RasterURL,
		},
		token:   opts.Token,
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  logger,
	}
}

// URL expands the endpoint template for key.
func (s *HTTPSource) URL(key tile.Key) (string, error) {
	tmpl := s.templates[key.Kind]
	if tmpl == "" {
		return "", fmt.Errorf("no %s endpoint configured", key.Kind)
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(key.Z),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
		"{token}", s.token,
	)
	return r.Replace(tmpl), nil
}

func (s *HTTPSource) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	url, err := s.URL(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.doWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s tile %d/%d/%d: %w", key.Kind, key.Z, key.X, key.Y, err)
	}
	return data, nil
}

// doWithRetry retries 5xx responses with exponential backoff. Transport
// errors and other statuses are returned at once.
func (s *HTTPSource) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	sleep := s.backoff
	var lastStatus int

	for i := 0; i < s.retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create HTTP request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET %s: %w", redact(url, s.token), err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			resp.Body.Close()
			return nil, ErrNotFound
		case resp.StatusCode >= 500 && resp.StatusCode < 600:
			resp.Body.Close()
			lastStatus = resp.StatusCode
			s.logger.Debug("Retrying tile request",
				zap.String("url", redact(url, s.token)),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", i+1),
				zap.Duration("sleep", sleep))
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, redact(url, s.token))
		}

		if i+1 == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
		if sleep > maxBackoff {
			sleep = maxBackoff
		}
	}

	return nil, fmt.Errorf("ran out of HTTP GET retries for %s (last status %d)", redact(url, s.token), lastStatus)
}

func redact(url, token string) string {
	if token == "" {
		return url
	}
	return strings.ReplaceAll(url, token, "REDACTED")
}
