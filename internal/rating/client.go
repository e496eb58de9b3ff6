// Package rating calls carrier rating APIs and normalizes their quotes.
package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/telemetry"
	"rateshop-backend/internal/shipping"
)

const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxAttempts = 2
	DefaultBackoff     = 500 * time.Millisecond

	maxResponseBytes = 4 << 20
)

// Quoter returns carrier API candidates for one shipment and account.
type Quoter interface {
	Quote(ctx context.Context, shipment shipping.ShipmentInput, account carriers.Account, serviceCodes []string) ([]shipping.RateCandidate, error)
}

// Options configures a Client.
type Options struct {
	HTTPClient  *http.Client
	Credentials CredentialSource
	Clock       clockz.Clock
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// DefaultRPS and DefaultBurst apply to accounts without their own limits.
	// A DefaultRPS of zero disables rate limiting.
	DefaultRPS   float64
	DefaultBurst int
}

// Client is a Quoter backed by carrier HTTP APIs. It is safe for concurrent
// use; tokens and limiters are shared per account.
type Client struct {
	http        *http.Client
	creds       CredentialSource
	clock       clockz.Clock
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	rps         float64
	burst       int

	mu       sync.Mutex
	tokens   map[string]oauth2.TokenSource
	limiters map[string]*rate.Limiter
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	c := &Client{
		http:        opts.HTTPClient,
		creds:       opts.Credentials,
		clock:       opts.Clock,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		rps:         opts.DefaultRPS,
		burst:       opts.DefaultBurst,
		tokens:      make(map[string]oauth2.TokenSource),
		limiters:    make(map[string]*rate.Limiter),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.creds == nil {
		c.creds = EnvCredentials{}
	}
	if c.clock == nil {
		c.clock = clockz.RealClock
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff < 0 {
		c.backoff = 0
	}
	if c.burst <= 0 {
		c.burst = 1
	}
	return c
}

// Quote issues one request per service code. Non-2xx, malformed and
// not-found responses are logged and skipped. An AuthError or a canceled
// context aborts the remaining service codes and discards any candidates.
func (c *Client) Quote(ctx context.Context, shipment shipping.ShipmentInput, account carriers.Account, serviceCodes []string) ([]shipping.RateCandidate, error) {
	if len(serviceCodes) == 0 {
		serviceCodes = account.ServiceCodes
	}
	if len(serviceCodes) == 0 {
		// one request for every service the carrier offers
		serviceCodes = []string{""}
	}
	ad := adapterFor(account.Carrier)
	if ad.endpoint(account) == "" {
		return nil, &AuthError{AccountID: account.ID, Err: errors.New("no rating endpoint configured")}
	}

	var out []shipping.RateCandidate
	for _, code := range serviceCodes {
		cands, err := c.quoteService(ctx, ad, shipment, account, code)
		if err != nil {
			if IsAuth(err) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			telemetry.Info("rating.service_skipped", map[string]any{
				"carrier_account_id": account.ID,
				"carrier":            account.Carrier,
				"service_code":       code,
				"shipment_id":        shipment.ID,
				"error":              err,
			})
			continue
		}
		out = append(out, cands...)
	}
	return out, nil
}

// quoteService runs the bounded retry loop for one service code.
func (c *Client) quoteService(ctx context.Context, ad adapter, shipment shipping.ShipmentInput, account carriers.Account, code string) ([]shipping.RateCandidate, error) {
	for attempt := 1; ; attempt++ {
		cands, err := c.attempt(ctx, ad, shipment, account, code)
		if err == nil || !IsTransient(err) || attempt >= c.maxAttempts {
			return cands, err
		}
		telemetry.Info("rating.retry", map[string]any{
			"carrier_account_id": account.ID,
			"service_code":       code,
			"attempt":            attempt,
			"error":              err,
		})
		if c.backoff > 0 {
			select {
			case <-c.clock.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

func (c *Client) attempt(ctx context.Context, ad adapter, shipment shipping.ShipmentInput, account carriers.Account, code string) ([]shipping.RateCandidate, error) {
	if err := c.limiter(account).Wait(ctx); err != nil {
		return nil, &TransientError{Err: err}
	}

	token, apiKey, err := c.credentials(ad, account)
	if err != nil {
		return nil, err
	}

	in := requestInput{
		Shipment:    shipment,
		Account:     account,
		ServiceCode: code,
		Weight:      shipment.BillableWeight(account.DimDivisor),
	}
	body, err := json.Marshal(ad.build(in))
	if err != nil {
		return nil, &MalformedError{ServiceCode: code, Reason: err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ad.endpoint(account), bytes.NewReader(body))
	if err != nil {
		return nil, &MalformedError{ServiceCode: code, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != nil {
		token.SetAuthHeader(req)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if ad.headers != nil {
		ad.headers(req.Header, in)
	}

	started := c.clock.Now()
	resp, err := c.http.Do(req)
	elapsed := c.clock.Since(started).Seconds()
	if err != nil {
		metrics.CarrierRequest(account.Carrier, "error", elapsed)
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.CarrierRequest(account.Carrier, "error", elapsed)
		return nil, &TransientError{Status: resp.StatusCode, Err: err}
	}

	if err := classifyStatus(resp.StatusCode, account, code, raw); err != nil {
		metrics.CarrierRequest(account.Carrier, statusOutcome(err), elapsed)
		if IsAuth(err) {
			c.dropToken(account.ID)
		}
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		metrics.CarrierRequest(account.Carrier, "malformed", elapsed)
		return nil, &MalformedError{ServiceCode: code, Status: resp.StatusCode, Reason: "invalid json"}
	}
	quotes, err := matchShape(ad.shapes, doc)
	if err != nil {
		metrics.CarrierRequest(account.Carrier, "malformed", elapsed)
		return nil, &MalformedError{ServiceCode: code, Status: resp.StatusCode, Reason: err.Error()}
	}
	metrics.CarrierRequest(account.Carrier, "ok", elapsed)
	return c.normalize(quotes, shipment, account, code), nil
}

func classifyStatus(status int, account carriers.Account, code string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{AccountID: account.ID, Status: status, Err: errors.New(snippet(body))}
	case status == http.StatusNotFound:
		return &NotFoundError{ServiceCode: code, Status: status}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Status: status, Err: errors.New(snippet(body))}
	default:
		return &MalformedError{ServiceCode: code, Status: status, Reason: snippet(body)}
	}
}

func statusOutcome(err error) string {
	switch {
	case IsAuth(err):
		return "auth"
	case IsNotFound(err):
		return "not_found"
	case IsTransient(err):
		return "transient"
	default:
		return "rejected"
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}

// normalize turns quotes into candidates, preferring the negotiated amount.
func (c *Client) normalize(quotes []rawQuote, shipment shipping.ShipmentInput, account carriers.Account, code string) []shipping.RateCandidate {
	want := strings.ToUpper(code)
	var out []shipping.RateCandidate
	for _, q := range quotes {
		service := q.Service
		if service == "" {
			service = code
		}
		if want != "" && !strings.EqualFold(service, want) {
			continue
		}
		amount := q.Account
		negotiated := amount != nil
		if amount == nil {
			amount = q.List
		}
		if amount == nil {
			telemetry.Info("rating.quote_unpriced", map[string]any{
				"carrier_account_id": account.ID,
				"service_code":       service,
				"shape":              q.Shape,
			})
			continue
		}
		currency := q.Currency
		if currency == "" {
			currency = shipment.Currency
		}
		if currency == "" {
			currency = "USD"
		}
		cand := shipping.RateCandidate{
			CarrierAccountID: account.ID,
			Carrier:          account.Carrier,
			ServiceCode:      strings.ToUpper(service),
			ServiceName:      q.ServiceName,
			Amount:           *amount,
			Currency:         currency,
			Source:           shipping.SourceCarrierAPI,
			Negotiated:       negotiated,
			TransitDays:      q.TransitDays,
		}
		if q.List != nil {
			cand.PublishedAmount = *q.List
		}
		if negotiated && q.List != nil && *q.List > *amount {
			saved := *q.List - *amount
			metrics.NegotiatedSavings(account.Carrier, saved)
			telemetry.Debug("rating.negotiated_savings", map[string]any{
				"carrier_account_id": account.ID,
				"service_code":       cand.ServiceCode,
				"shipment_id":        shipment.ID,
				"published":          *q.List,
				"negotiated":         *amount,
				"savings":            saved,
			})
		}
		out = append(out, cand)
	}
	return out
}

// credentials returns a bearer token and/or API key for the account.
func (c *Client) credentials(ad adapter, account carriers.Account) (*oauth2.Token, string, error) {
	creds, err := c.creds.Lookup(account.CredentialsRef)
	if err != nil {
		return nil, "", &AuthError{AccountID: account.ID, Err: err}
	}
	tokenURL := ad.tokenURL(account)
	if creds.ClientID == "" || tokenURL == "" {
		if ad.requiresOAuth {
			return nil, "", &AuthError{AccountID: account.ID, Err: errors.New("missing oauth client credentials")}
		}
		return nil, creds.APIKey, nil
	}

	ts := c.tokenSource(account, creds, tokenURL)
	tok, err := ts.Token()
	if err != nil {
		c.dropToken(account.ID)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			if re.Response.StatusCode >= 500 || re.Response.StatusCode == http.StatusTooManyRequests {
				return nil, "", &TransientError{Status: re.Response.StatusCode, Err: err}
			}
			return nil, "", &AuthError{AccountID: account.ID, Status: re.Response.StatusCode, Err: err}
		}
		if re != nil {
			return nil, "", &AuthError{AccountID: account.ID, Err: err}
		}
		return nil, "", &TransientError{Err: fmt.Errorf("token request: %w", err)}
	}
	return tok, creds.APIKey, nil
}

func (c *Client) tokenSource(account carriers.Account, creds Credentials, tokenURL string) oauth2.TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.tokens[account.ID]; ok {
		return ts
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// token fetches outlive any single request context
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
	ts := oauth2.ReuseTokenSource(nil, cfg.TokenSource(base))
	c.tokens[account.ID] = ts
	return ts
}

func (c *Client) dropToken(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, accountID)
}

func (c *Client) limiter(account carriers.Account) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[account.ID]; ok {
		return l
	}
	rps, burst := c.rps, c.burst
	if account.RequestsPerSecond > 0 {
		rps = account.RequestsPerSecond
	}
	if account.Burst > 0 {
		burst = account.Burst
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	l := rate.NewLimiter(limit, burst)
	c.limiters[account.ID] = l
	return l
}
