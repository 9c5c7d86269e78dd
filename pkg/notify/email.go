// Package notify delivers the summary by email through the HTTP notification
// API.
package notify

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNoRecipients = errors.New("notify: no recipients")
	ErrCircuitOpen  = errors.New("notify: circuit breaker open")
)

// Message is one HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// payload is the request body of the notification API.
type payload struct {
	Key         string   `json:"key"`
	To          string   `json:"para"`
	Cc          []string `json:"conCopia"`
	Attachments []string `json:"adjuntos"`
	Bcc         string   `json:"copiaOculta"`
	Subject     string   `json:"asunto"`
	Body        string   `json:"body"`
	IsHTML      bool     `json:"isHtml"`
}

type Options struct {
	Endpoint   string
	APIKey     string
	AppKey     string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the base delay; attempt i waits Backoff*2^i plus jitter.
	Backoff time.Duration
	// Limiter paces sends when set.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client posts messages to the notification API, retrying 5xx responses and
// transport errors with exponential backoff behind a circuit breaker.
type Client struct {
	endpoint   string
	apiKey     string
	appKey     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	breaker    *CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" || opts.APIKey == "" {
		return nil, errors.New("notify: endpoint and api key are required")
	}
	c := &Client{
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		appKey:     opts.AppKey,
		client:     opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		breaker:    NewCircuitBreaker("email", 5, 10*time.Second),
		limiter:    opts.Limiter,
		logger:     opts.Logger,
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		c.client = &http.Client{Timeout: timeout}
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// Send posts msg. A non-2xx response after the last attempt is an error.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	body, err := json.Marshal(payload{
		Key:         c.appKey,
		To:          strings.Join(msg.To, ","),
		Cc:          []string{},
		Attachments: []string{},
		Subject:     msg.Subject,
		Body:        msg.HTML,
		IsHTML:      true,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("%w for %s", ErrCircuitOpen, c.breaker.name)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		status, respBody, err := c.post(ctx, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			c.breaker.Success()
			c.logger.Info("email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Int("attempt", i+1))
			return nil
		case err == nil && status < 500:
			c.breaker.Success()
			return fmt.Errorf("email rejected: HTTP %d: %s", status, respBody)
		case err == nil:
			lastErr = fmt.Errorf("email failed: HTTP %d: %s", status, respBody)
		default:
			lastErr = fmt.Errorf("email failed: %w", err)
		}
		if ctx.Err() != nil || i == c.maxRetries {
			break
		}
		c.logger.Warn("email attempt failed, retrying", zap.Int("attempt", i+1), zap.Error(lastErr))
		if err := sleep(ctx, c.delay(i)); err != nil {
			lastErr = err
			break
		}
	}
	c.breaker.Failure()
	return lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("ApiKeyApp", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(snippet)), nil
}

// delay is base * 2^i plus up to 50ms of jitter.
func (c *Client) delay(i int) time.Duration {
	d := time.Duration(math.Pow(2, float64(i))) * c.backoff
	if n, err := rand.Int(rand.Reader, big.NewInt(50)); err == nil {
		d += time.Duration(n.Int64()) * time.Millisecond
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
