package broker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taxsync-pro/internal/model"
)

// Live is the generic REST source: bearer-token JSON endpoints under the
// broker's API URL.
type Live struct {
	cfg     Config
	limiter *RateLimiter
	norm    Normalizer
	client  *http.Client
	now     func() time.Time

	mu    sync.RWMutex
	creds model.Credentials
}

// NewLive builds a live source. client may be nil.
func NewLive(cfg Config, creds model.Credentials, limiter *RateLimiter, norm Normalizer, client *http.Client) *Live {
	if client == nil {
		client = http.DefaultClient
	}
	return &Live{
		cfg:     cfg,
		creds:   creds,
		limiter: limiter,
		norm:    norm,
		client:  client,
		now:     time.Now,
	}
}

func (l *Live) Broker() string { return l.cfg.Name }

func (l *Live) Credentials() model.Credentials {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.creds
}

func (l *Live) Authenticate(ctx context.Context) error {
	var err error
	switch l.cfg.AuthType {
	case AuthOAuth:
		err = l.exchangeSessionToken(ctx)
	case AuthAPIKey:
		_, err = l.do(ctx, http.MethodGet, "/user/profile", nil, l.Credentials().APIKey)
	case AuthToken:
		if l.Credentials().AccessToken == "" {
			err = errors.New("access token required")
		}
	default:
		err = fmt.Errorf("unknown auth type %q", l.cfg.AuthType)
	}
	if err != nil {
		return &model.UpstreamFetchError{Broker: l.cfg.Name, Op: "authenticate", Err: err}
	}
	return nil
}

// exchangeSessionToken trades a request token for an access token, Kite style:
// checksum = sha256(api_key + request_token + api_secret).
func (l *Live) exchangeSessionToken(ctx context.Context) error {
	c := l.Credentials()
	sum := sha256.Sum256([]byte(c.APIKey + c.AccessToken + c.APISecret))
	payload, err := json.Marshal(map[string]string{
		"api_key":       c.APIKey,
		"request_token": c.AccessToken,
		"checksum":      hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return err
	}

	raw, err := l.do(ctx, http.MethodPost, "/session/token", payload, "")
	if err != nil {
		return err
	}
	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if resp.Data.AccessToken != "" {
		l.mu.Lock()
		l.creds.AccessToken = resp.Data.AccessToken
		l.mu.Unlock()
	}
	return nil
}

func (l *Live) Holdings(ctx context.Context) ([]model.Holding, error) {
	raw, err := l.do(ctx, http.MethodGet, "/portfolio/holdings", nil, l.Credentials().AccessToken)
	if err != nil {
		return nil, &model.UpstreamFetchError{Broker: l.cfg.Name, Op: "holdings", Err: err}
	}
	return l.norm.Normalize(raw, l.now())
}

func (l *Live) Transactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	raw, err := l.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, l.Credentials().AccessToken)
	if err != nil {
		return nil, &model.UpstreamFetchError{Broker: l.cfg.Name, Op: "transactions", Err: err}
	}
	return NormalizeTransactions(l.cfg.Name, raw)
}

func (l *Live) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	_, err := l.do(ctx, http.MethodGet, "/user/profile", nil, l.Credentials().AccessToken)
	return healthFrom(l.cfg.Name, start, err)
}

func (l *Live) do(ctx context.Context, method, path string, body []byte, bearer string) ([]byte, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, l.cfg.Name); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(l.cfg.APIURL, "/")+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.AuthType == AuthOAuth {
		req.Header.Set("X-Kite-Version", "3")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return raw, nil
}
