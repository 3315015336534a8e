package service

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "time"
)

// HTTPPricer talks to the external pricing service.  The pricing
// engine owns all line-item computation; this client only fetches
// quotes and never interprets them beyond the total.
type HTTPPricer struct {
    base   string
    client *http.Client
}

// NewHTTPPricer returns a pricer bound to the given base URL, e.g.
// "http://pricing:8081".
func NewHTTPPricer(base string) *HTTPPricer {
    return &HTTPPricer{
        base:   base,
        client: &http.Client{Timeout: 5 * time.Second},
    }
}

func (p *HTTPPricer) fetch(ctx context.Context, u string) (Quote, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil {
        return Quote{}, err
    }
    resp, err := p.client.Do(req)
    if err != nil {
        return Quote{}, fmt.Errorf("pricing request: %w", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return Quote{}, fmt.Errorf("pricing responded %d", resp.StatusCode)
    }
    var q Quote
    if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
        return Quote{}, fmt.Errorf("pricing decode: %w", err)
    }
    return q, nil
}

// OriginalQuote returns the quote recorded for the visit at check-in.
func (p *HTTPPricer) OriginalQuote(ctx context.Context, visitID uint64) (Quote, error) {
    return p.fetch(ctx, fmt.Sprintf("%s/v1/visits/%d/quote", p.base, visitID))
}

// TierQuote prices the visit as if it were checked in at the given
// tier right now.
func (p *HTTPPricer) TierQuote(ctx context.Context, visitID uint64, tier string) (Quote, error) {
    return p.fetch(ctx, fmt.Sprintf("%s/v1/visits/%d/quote?tier=%s", p.base, visitID, url.QueryEscape(tier)))
}

var _ Pricer = (*HTTPPricer)(nil)
