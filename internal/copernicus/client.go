package copernicus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/forest-guardian/greenwatch/internal/properties"
	"github.com/forest-guardian/greenwatch/internal/sentinel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var errUnauthorized = errors.New("unauthorized access, check your client ID and secret")

type Credential struct {
	ClientID     string
	ClientSecret string
}

// StatusError is a non retryable rejection of a request by the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("copernicus request rejected with status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Sentinel Hub APIs of the Copernicus Data Space. Requests are
// authenticated with OAuth2 client credentials; when a credential is rejected the next one
// is tried and becomes the active credential on success.
type Client struct {
	credentials []Credential
	tokenURL    string
	apiURL      string
	retries     int
	backoff     time.Duration
	base        *http.Client

	mu      sync.Mutex
	active  int
	clients map[int]*http.Client
}

func NewClient(credentials []Credential, tokenURL, apiURL string) *Client {
	return &Client{
		credentials: credentials,
		tokenURL:    tokenURL,
		apiURL:      strings.TrimSuffix(apiURL, "/"),
		retries:     3,
		backoff:     2 * time.Second,
		base:        &http.Client{Timeout: 2 * time.Minute},
		clients:     make(map[int]*http.Client),
	}
}

func NewClientFromEnv() (*Client, error) {
	pairs, err := properties.CopernicusCredentials()
	if err != nil {
		return nil, err
	}
	credentials := make([]Credential, 0, len(pairs))
	for _, pair := range pairs {
		credentials = append(credentials, Credential{ClientID: pair[0], ClientSecret: pair[1]})
	}
	client := NewClient(credentials, properties.CopernicusTokenURL(), properties.CopernicusAPIURL())
	client.retries = properties.CopernicusRetries()
	return client, nil
}

// WithRetries sets the attempts per credential and the base delay between them.
func (c *Client) WithRetries(retries int, backoff time.Duration) *Client {
	if retries < 1 {
		retries = 1
	}
	c.retries = retries
	c.backoff = backoff
	return c
}

func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.base = client
	return c
}

func (c *Client) httpClient(i int) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[i]; ok {
		return client
	}
	config := &clientcredentials.Config{
		ClientID:     c.credentials[i].ClientID,
		ClientSecret: c.credentials[i].ClientSecret,
		TokenURL:     c.tokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	client := config.Client(ctx)
	client.Timeout = c.base.Timeout
	c.clients[i] = client
	return client
}

func (c *Client) activeCredential() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) setActiveCredential(i int) {
	c.mu.Lock()
	c.active = i
	c.mu.Unlock()
}

// post sends a JSON payload to the API path. Connectivity failures, throttling and server
// errors are retried; once retries or credentials are exhausted the error wraps
// sentinel.ErrProviderUnavailable.
func (c *Client) post(ctx context.Context, path string, payload []byte, accept string) ([]byte, error) {
	if len(c.credentials) == 0 {
		return nil, fmt.Errorf("%w: no copernicus credentials configured", sentinel.ErrProviderUnavailable)
	}

	start := c.activeCredential()
	var lastErr error
	for n := 0; n < len(c.credentials); n++ {
		i := (start + n) % len(c.credentials)
		body, err := c.postWith(ctx, i, path, payload, accept)
		if err == nil {
			c.setActiveCredential(i)
			return body, nil
		}
		if !errors.Is(err, errUnauthorized) {
			return nil, err
		}
		log.Printf("Copernicus credential %d rejected, trying next one", i+1)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: all %d credentials rejected: %v", sentinel.ErrProviderUnavailable, len(c.credentials), lastErr)
}

func (c *Client) postWith(ctx context.Context, credential int, path string, payload []byte, accept string) ([]byte, error) {
	client := c.httpClient(credential)
	url := c.apiURL + path

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var retrieveErr *oauth2.RetrieveError
			if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
				return nil, fmt.Errorf("%w: %v", errUnauthorized, err)
			}
			lastErr = err
			log.Printf("Attempt %d failed: %v", attempt, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK && readErr == nil:
				return body, nil
			case resp.StatusCode == http.StatusOK:
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return nil, errUnauthorized
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			default:
				return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			}
			log.Printf("Attempt %d failed: %v", attempt, lastErr)
		}

		if attempt < c.retries {
			if err := sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: request failed after %d attempts: %v", sentinel.ErrProviderUnavailable, c.retries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
