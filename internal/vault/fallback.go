package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// rayToWad scales a 1e27 ray value down to 1e18 fixed point.
var rayToWad = big.NewInt(1_000_000_000)

// fallbackResponse is the REST quote endpoint's body.
type fallbackResponse struct {
	PricePerShareRay string `json:"pricePerShareRay"`
	UpdatedAtMs      int64  `json:"updatedAtMs,omitempty"`
}

// FallbackPoller periodically fetches the vault share price from the
// REST endpoint backed by on-chain reads and feeds it to the Subscriber
// as a fallback-sourced quote. The freshness rule keeps it from ever
// shadowing a live off-chain quote.
type FallbackPoller struct {
	quoteURL string
	chainID  int64
	vault    string
	interval time.Duration
	client   *http.Client
	sub      *Subscriber

	nowFunc func() time.Time
}

// NewFallbackPoller creates a poller hitting quoteURL every interval.
func NewFallbackPoller(quoteURL string, chainID int64, vaultAddress string, interval time.Duration, sub *Subscriber) *FallbackPoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &FallbackPoller{
		quoteURL: quoteURL,
		chainID:  chainID,
		vault:    strings.ToLower(strings.TrimSpace(vaultAddress)),
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		sub:      sub,
		nowFunc:  time.Now,
	}
}

// Run polls until ctx is cancelled. The first fetch happens immediately
// so consumers are not left without data for a full interval.
func (fp *FallbackPoller) Run(ctx context.Context) {
	if err := fp.poll(ctx); err != nil {
		log.Printf("vault: fallback fetch: %v", err)
	}

	ticker := time.NewTicker(fp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fp.poll(ctx); err != nil {
				log.Printf("vault: fallback fetch: %v", err)
			}
		}
	}
}

func (fp *FallbackPoller) poll(ctx context.Context) error {
	q, err := fp.fetch(ctx)
	if err != nil {
		return err
	}
	fp.sub.Apply(q)
	return nil
}

// fetch performs one GET and converts the response into a fallback quote.
func (fp *FallbackPoller) fetch(ctx context.Context) (Quote, error) {
	u, err := url.Parse(fp.quoteURL)
	if err != nil {
		return Quote{}, fmt.Errorf("bad quote url: %w", err)
	}
	qs := u.Query()
	qs.Set("chainId", strconv.FormatInt(fp.chainID, 10))
	qs.Set("vaultAddress", fp.vault)
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := fp.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote endpoint returned %d", resp.StatusCode)
	}

	var body fallbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}

	ray, ok := new(big.Int).SetString(body.PricePerShareRay, 10)
	if !ok || ray.Sign() < 0 {
		return Quote{}, fmt.Errorf("unparsable pricePerShareRay %q", body.PricePerShareRay)
	}

	ts := body.UpdatedAtMs
	if ts == 0 {
		ts = fp.nowFunc().UnixMilli()
	}

	return Quote{
		ChainID:            fp.chainID,
		Vault:              fp.vault,
		CollateralPerShare: new(big.Int).Quo(ray, rayToWad),
		Timestamp:          ts,
		Source:             SourceFallback,
	}, nil
}
