/*
This file contains the concrete price source clients: the on-chain oracle
REST read (primary) and the off-chain price API (secondary). Both are thin
HTTP collaborators polled on demand, never continuously.
*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
)

var sourceLogger = logger.GetForComponent("price_sources")

var (
	ErrAPIConfiguration = errors.New("price source configuration error")
	ErrBadSourceReply   = errors.New("price source returned an unusable reply")
)

const (
	MAX_RETRIES     = 3
	TIMEOUT_SECONDS = 15
)

// RESTChainOracle reads the host ledger's oracle module over its REST
// gateway: GET {base}/oracle/price/{asset} -> {"value": "...", "timestamp": unixSeconds}.
type RESTChainOracle struct {
	baseURL string
	client  *http.Client
}

func NewRESTChainOracle(baseURL string) (*RESTChainOracle, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: chain oracle base URL is empty", ErrAPIConfiguration)
	}
	return &RESTChainOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
	}, nil
}

type chainOracleReply struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// GetPrice implements ChainOracle.
func (c *RESTChainOracle) GetPrice(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, time.Time, error) {
	url := fmt.Sprintf("%s/oracle/price/%s", c.baseURL, asset)
	body, err := fetchWithRetries(ctx, c.client, url)
	if err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, err
	}

	var reply chainOracleReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %w", ErrBadSourceReply, err)
	}
	if reply.Timestamp <= 0 {
		return sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: invalid timestamp %d for %s", ErrBadSourceReply, reply.Timestamp, asset)
	}
	value, err := utils.ParseDec(reply.Value)
	if err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: value %q for %s: %w", ErrBadSourceReply, reply.Value, asset, err)
	}
	if !value.IsPositive() {
		return sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: non-positive price for %s", ErrBadSourceReply, asset)
	}
	return value, time.Unix(reply.Timestamp, 0), nil
}

// PriceAPIClient polls a CoinGecko-shaped HTTP API:
// GET {base}/simple/price?ids={id}&vs_currencies=usd -> {"{id}": {"usd": 1.23}}.
// AssetIDs maps engine asset identifiers to the API's coin ids; an asset
// without an entry uses its own identifier, because odds are it will work.
type PriceAPIClient struct {
	baseURL  string
	assetIDs map[types.AssetID]string
	client   *http.Client
}

func NewPriceAPIClient(baseURL string, assetIDs map[types.AssetID]string) (*PriceAPIClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: price API base URL is empty", ErrAPIConfiguration)
	}
	return &PriceAPIClient{
		baseURL:  baseURL,
		assetIDs: assetIDs,
		client:   &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
	}, nil
}

// GetPriceUSD implements APISource.
func (p *PriceAPIClient) GetPriceUSD(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, error) {
	id, ok := p.assetIDs[asset]
	if !ok {
		id = string(asset)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", p.baseURL, id)
	body, err := fetchWithRetries(ctx, p.client, url)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}

	var reply map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrBadSourceReply, err)
	}
	quote, ok := reply[id]
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: no quote for %s (%s)", ErrBadSourceReply, asset, id)
	}

	price, err := utils.Float64ToDec(quote.USD)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: quote for %s: %w", ErrBadSourceReply, asset, err)
	}
	if !price.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: non-positive quote for %s", ErrBadSourceReply, asset)
	}
	return price, nil
}

// fetchWithRetries performs a GET with bounded retries and linear backoff.
func fetchWithRetries(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed on attempt %d: %w", attempt, err)
			sourceLogger.Warn().Err(err).Str("url", url).Int("attempt", attempt).
				Msg("Price source request failed, will retry if attempts remain")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < MAX_RETRIES {
				time.Sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("source returned status %d", resp.StatusCode)
			sourceLogger.Warn().Int("statusCode", resp.StatusCode).Str("url", url).
				Int("attempt", attempt).Msg("Price source returned non-200 status")
			if attempt < MAX_RETRIES {
				time.Sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}
		if len(body) == 0 {
			lastErr = errors.New("empty response body")
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", MAX_RETRIES, lastErr)
}
