package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/utils"
)

// RESTAdapter implements Adapter over a venue's REST API. Venue quirks
// (endpoint layout, symbol formatting, spread availability) are isolated in
// the per-venue configuration; the request/response plumbing is shared.
type RESTAdapter struct {
	httpClient      *http.Client
	name            string
	baseURL         string
	takerFee        decimal.Decimal
	hasNativeSpread bool
	signer          RequestSigner
	logger          *logrus.Logger
}

// RequestSigner attaches venue-specific authentication to outgoing requests.
// Signing mechanics are out of scope for the engine; a nil signer leaves
// requests unauthenticated (public endpoints only).
type RequestSigner interface {
	Sign(req *http.Request) error
}

type tickerResponse struct {
	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
	Last decimal.Decimal `json:"last"`
}

type orderResponse struct {
	OrderID   string          `json:"order_id"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

type withdrawResponse struct {
	WithdrawalID string `json:"withdrawal_id"`
}

type balanceResponse struct {
	Available decimal.Decimal `json:"available"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRESTAdapter creates an adapter for one configured venue.
func NewRESTAdapter(cfg config.VenueConfig, signer RequestSigner, logger *logrus.Logger) *RESTAdapter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &RESTAdapter{
		httpClient:      &http.Client{Timeout: timeout},
		name:            cfg.Name,
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		takerFee:        decimal.NewFromFloat(cfg.TakerFee),
		hasNativeSpread: cfg.HasNativeSpread,
		signer:          signer,
		logger:          logger,
	}
}

// Name returns the venue identifier.
func (a *RESTAdapter) Name() string {
	return a.name
}

// HasNativeSpread reports whether the venue ticker carries real bid/ask.
func (a *RESTAdapter) HasNativeSpread() bool {
	return a.hasNativeSpread
}

// TakerFee returns the venue's taker fee as a fraction (0.001 = 0.1%).
func (a *RESTAdapter) TakerFee() decimal.Decimal {
	return a.takerFee
}

// GetTicker retrieves the current quote for a pair.
func (a *RESTAdapter) GetTicker(ctx context.Context, pair string) (*Ticker, error) {
	path := fmt.Sprintf("/ticker/%s", url.PathEscape(formatSymbol(pair)))
	var resp tickerResponse
	if err := a.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &Ticker{Bid: resp.Bid, Ask: resp.Ask, Last: resp.Last}, nil
}

// PlaceMarketOrder submits a market order and returns the fill.
func (a *RESTAdapter) PlaceMarketOrder(ctx context.Context, side OrderSide, pair string, amount decimal.Decimal) (*OrderResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.NewValidationErrorf("order amount must be positive, got %s", amount)
	}
	body := map[string]interface{}{
		"side":   string(side),
		"symbol": formatSymbol(pair),
		"amount": amount.String(),
		"type":   "market",
	}
	var resp orderResponse
	if err := a.request(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return nil, err
	}
	return &OrderResult{OrderID: resp.OrderID, FilledQty: resp.FilledQty, AvgPrice: resp.AvgPrice}, nil
}

// Withdraw submits an on-chain withdrawal. Irreversible once accepted.
func (a *RESTAdapter) Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag string) (*WithdrawalResult, error) {
	if address == "" {
		return nil, utils.NewValidationError("withdrawal address must not be empty")
	}
	body := map[string]interface{}{
		"asset":   asset,
		"amount":  amount.String(),
		"address": address,
	}
	if tag != "" {
		body["tag"] = tag
	}
	var resp withdrawResponse
	if err := a.request(ctx, http.MethodPost, "/withdrawals", body, &resp); err != nil {
		return nil, err
	}
	return &WithdrawalResult{WithdrawalID: resp.WithdrawalID}, nil
}

// GetBalance retrieves the available balance of one asset.
func (a *RESTAdapter) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	path := fmt.Sprintf("/balances/%s", url.PathEscape(asset))
	var resp balanceResponse
	if err := a.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &Balance{Available: resp.Available}, nil
}

// OperationalStatus probes the venue's system status endpoint.
func (a *RESTAdapter) OperationalStatus(ctx context.Context) (bool, error) {
	var resp statusResponse
	if err := a.request(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return false, err
	}
	return strings.EqualFold(resp.Status, "ok") || strings.EqualFold(resp.Status, "online"), nil
}

func (a *RESTAdapter) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if a.signer != nil {
		if err := a.signer.Sign(req); err != nil {
			return utils.NewExchangeAPIError(a.name, method+" "+path, "request signing failed", err)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return utils.NewExchangeAPIError(a.name, method+" "+path, "", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			a.logger.WithError(cerr).WithField("venue", a.name).Warn("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.NewExchangeAPIError(a.name, method+" "+path, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw := strings.TrimSpace(string(data))
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil {
			if apiErr.Message != "" {
				raw = apiErr.Message
			} else if apiErr.Error != "" {
				raw = apiErr.Error
			}
		}
		return utils.NewExchangeAPIError(a.name, method+" "+path, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, raw), nil)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return utils.NewExchangeAPIError(a.name, method+" "+path, "failed to decode response", err)
		}
	}
	return nil
}

// formatSymbol converts "XRP/USDT" to the wire form "XRP-USDT".
func formatSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "-")
}
