/*
This file contains the live DEX adapter, a thin HTTP client against the
venue's REST gateway. Quote reads are GETs; swaps are POSTs and are never
retried here, because a submitted swap cannot be cancelled.
*/

package dex

import (
	"bytes"
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

var dexLogger = logger.GetForComponent("dex_adapter")

var (
	ErrAdapterConfiguration = errors.New("dex adapter configuration error")
	ErrBadVenueReply        = errors.New("dex venue returned an unusable reply")
)

// RESTAdapter implements Adapter against a swap venue's REST gateway.
type RESTAdapter struct {
	baseURL string
	client  *http.Client
}

func NewRESTAdapter(baseURL string) (*RESTAdapter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is empty", ErrAdapterConfiguration)
	}
	return &RESTAdapter{
		baseURL: baseURL,
		// No client-level timeout: swap deadlines are caller-supplied
		// through the context.
		client: &http.Client{},
	}, nil
}

type quoteReply struct {
	Rate string `json:"rate"`
}

// QuoteRate implements Adapter.
func (r *RESTAdapter) QuoteRate(ctx context.Context, assetIn, assetOut types.AssetID) (sdkmath.LegacyDec, error) {
	url := fmt.Sprintf("%s/quote?in=%s&out=%s", r.baseURL, assetIn, assetOut)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("failed to build quote request: %w", err)
	}

	body, err := r.do(req)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}

	var reply quoteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrBadVenueReply, err)
	}
	rate, err := utils.ParseDec(reply.Rate)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: rate %q: %w", ErrBadVenueReply, reply.Rate, err)
	}
	if !rate.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: non-positive rate", ErrBadVenueReply)
	}
	return rate, nil
}

type swapRequest struct {
	AssetIn      string `json:"asset_in"`
	AssetOut     string `json:"asset_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
}

type swapReply struct {
	AmountOut string `json:"amount_out"`
}

// Swap implements Adapter.
func (r *RESTAdapter) Swap(ctx context.Context, assetIn, assetOut types.AssetID, amountIn, minAmountOut sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	payload, err := json.Marshal(swapRequest{
		AssetIn:      string(assetIn),
		AssetOut:     string(assetOut),
		AmountIn:     amountIn.String(),
		MinAmountOut: minAmountOut.String(),
	})
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("failed to encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("failed to build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	body, err := r.do(req)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}

	var reply swapReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrBadVenueReply, err)
	}
	amountOut, err := utils.ParseDec(reply.AmountOut)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: amount_out %q: %w", ErrBadVenueReply, reply.AmountOut, err)
	}

	dexLogger.Info().
		Str("assetIn", string(assetIn)).
		Str("assetOut", string(assetOut)).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Dur("elapsed", time.Since(started)).
		Msg("Swap executed")
	return amountOut, nil
}

func (r *RESTAdapter) do(req *http.Request) ([]byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadVenueReply, resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadVenueReply)
	}
	return body, nil
}
