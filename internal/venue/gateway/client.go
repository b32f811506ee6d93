// Package gateway is the REST client for an external batch-auction venue
// gateway. The gateway fronts the actual auction protocol; this client only
// speaks the narrow create/settle/status contract the rebalancer needs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// Client is the REST client for the venue gateway API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL is the API root, e.g.
// "https://venue.example.com/api/v1"; apiKey may be empty when the gateway
// does not require authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type createAuctionRequest struct {
	SellAsset    string `json:"sell_asset"`
	BuyAsset     string `json:"buy_asset"`
	SellAmount   string `json:"sell_amount"`
	MinBuyAmount string `json:"min_buy_amount"`
	EndTime      int64  `json:"end_time"`
	Funder       string `json:"funder"`
}

type createAuctionResponse struct {
	AuctionID string `json:"auction_id"`
}

type auctionStatusResponse struct {
	AuctionID string `json:"auction_id"`
	Settled   bool   `json:"settled"`
	Sold      string `json:"sold,omitempty"`
	Bought    string `json:"bought,omitempty"`
}

// CreateAuction submits a sell order to the gateway and returns the venue's
// auction handle.
func (c *Client) CreateAuction(ctx context.Context, req domain.AuctionRequest) (string, error) {
	body := createAuctionRequest{
		SellAsset:    req.Sell.Hex(),
		BuyAsset:     req.Buy.Hex(),
		SellAmount:   req.SellAmount.String(),
		MinBuyAmount: req.MinBuyAmount.String(),
		EndTime:      req.EndTime.Unix(),
		Funder:       string(req.Funder),
	}
	var resp createAuctionResponse
	if err := c.do(ctx, http.MethodPost, "/auctions", body, &resp); err != nil {
		return "", fmt.Errorf("gateway: create auction: %w", err)
	}
	if resp.AuctionID == "" {
		return "", fmt.Errorf("gateway: create auction: empty auction id in response")
	}
	return resp.AuctionID, nil
}

// SettleAuction asks the gateway to settle the auction and returns the
// clearing outcome.
func (c *Client) SettleAuction(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	var resp auctionStatusResponse
	if err := c.do(ctx, http.MethodPost, "/auctions/"+auctionID+"/settle", nil, &resp); err != nil {
		return domain.AuctionResult{}, fmt.Errorf("gateway: settle auction %s: %w", auctionID, err)
	}
	return parseResult(resp)
}

// IsSettled reports whether the auction has already been settled, by this
// process or anyone else.
func (c *Client) IsSettled(ctx context.Context, auctionID string) (bool, error) {
	var resp auctionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/auctions/"+auctionID, nil, &resp); err != nil {
		return false, fmt.Errorf("gateway: auction status %s: %w", auctionID, err)
	}
	return resp.Settled, nil
}

// Result returns the recorded outcome of an already-settled auction.
func (c *Client) Result(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	var resp auctionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/auctions/"+auctionID, nil, &resp); err != nil {
		return domain.AuctionResult{}, fmt.Errorf("gateway: auction result %s: %w", auctionID, err)
	}
	if !resp.Settled {
		return domain.AuctionResult{}, fmt.Errorf("gateway: auction %s: %w", auctionID, domain.ErrAuctionNotEnded)
	}
	return parseResult(resp)
}

// gatewayError is the gateway's JSON error envelope.
type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do executes one JSON request against the gateway and decodes the response
// into out. Gateway error codes for expected conditions map onto the
// domain's sentinel errors so callers can errors.Is them.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge gatewayError
		if json.Unmarshal(data, &ge) == nil {
			switch ge.Code {
			case "auction_not_ended":
				return fmt.Errorf("%s: %w", ge.Message, domain.ErrAuctionNotEnded)
			case "auction_settled":
				return fmt.Errorf("%s: %w", ge.Message, domain.ErrAuctionSettled)
			case "not_found":
				return fmt.Errorf("%s: %w", ge.Message, domain.ErrNotFound)
			case "insufficient_funds":
				return fmt.Errorf("%s: %w", ge.Message, domain.ErrInsufficientFunds)
			}
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseResult(resp auctionStatusResponse) (domain.AuctionResult, error) {
	sold, ok := new(big.Int).SetString(resp.Sold, 10)
	if !ok {
		return domain.AuctionResult{}, fmt.Errorf("gateway: malformed sold amount %q", resp.Sold)
	}
	bought, ok := new(big.Int).SetString(resp.Bought, 10)
	if !ok {
		return domain.AuctionResult{}, fmt.Errorf("gateway: malformed bought amount %q", resp.Bought)
	}
	return domain.AuctionResult{Sold: sold, Bought: bought}, nil
}
