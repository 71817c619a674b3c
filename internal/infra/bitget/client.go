package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lob_go/internal/domain"
)

// Client is a Bitget V2 public REST client. It only reads market metadata.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "bitget_client"),
	}
}

// Scales returns the venue's price and quantity decimal places for instId.
func (c *Client) Scales(ctx context.Context, instType, instId string) (px, qty int32, err error) {
	q := url.Values{"symbol": {instId}}

	if instType == InstTypeFutures {
		q.Set("productType", InstTypeFutures)
		var rows []contractSymbol
		if err := c.get(ctx, "/api/v2/mix/market/contracts", q, &rows); err != nil {
			return 0, 0, err
		}
		if len(rows) == 0 {
			return 0, 0, fmt.Errorf("%s: %w", instId, domain.ErrInvalidSymbol)
		}
		return parseScales(rows[0].PricePlace, rows[0].VolumePlace)
	}

	var rows []spotSymbol
	if err := c.get(ctx, "/api/v2/spot/public/symbols", q, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, fmt.Errorf("%s: %w", instId, domain.ErrInvalidSymbol)
	}
	return parseScales(rows[0].PricePrecision, rows[0].QuantityPrecision)
}

// Discover fills in scales for every instrument from the venue.
func (c *Client) Discover(ctx context.Context, instType string, instruments []domain.Instrument) error {
	for i := range instruments {
		px, qty, err := c.Scales(ctx, instType, instruments[i].VenueSymbol)
		if err != nil {
			return fmt.Errorf("discover %s: %w", instruments[i].Symbol, err)
		}
		instruments[i].PriceScale = px
		instruments[i].QtyScale = qty
		c.logger.Info("Instrument scales", "symbol", instruments[i].Symbol, "price_scale", px, "qty_scale", qty)
	}
	return nil
}

func parseScales(pxStr, qtyStr string) (int32, int32, error) {
	px, err := strconv.ParseInt(pxStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("price precision %q: %w", pxStr, err)
	}
	qty, err := strconv.ParseInt(qtyStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("quantity precision %q: %w", qtyStr, err)
	}
	return int32(px), int32(qty), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("locale", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("rest", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("rest", err)
	}
	if resp.StatusCode >= 500 {
		return domain.NewNetworkError("rest", fmt.Errorf("status=%d body=%s", resp.StatusCode, body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Code != "00000" { // Bitget Success Code
		return domain.NewFatalNetworkError("rest", fmt.Errorf("bitget business error: code=%s msg=%s", apiResp.Code, apiResp.Msg))
	}
	return json.Unmarshal(apiResp.Data, out)
}
