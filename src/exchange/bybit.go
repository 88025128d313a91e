// REST API CLIENT FOR BYBIT V5 UNIFIED TRADING
// RESTY ONLY + INTERNAL RETRY + OUTBOUND RATE LIMIT
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	categoryLinear = "linear"
)

// apiResponse is the Bybit v5 envelope.
type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// BybitClient talks to the Bybit v5 REST API for USDT perpetuals.
type BybitClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow string
	http       *resty.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewBybitClient(apiKey, apiSecret string, testnet bool) *BybitClient {
	config := GetConfig()

	baseURL := config.BybitBaseURL
	if testnet {
		baseURL = config.BybitTestnetBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Duration(config.RequestTimeoutSec) * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BybitClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		recvWindow: strconv.Itoa(config.RecvWindowMs),
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RequestBurst),
		now:        time.Now,
	}
}

// signPayload computes the v5 signature over timestamp+apiKey+recvWindow+payload,
// where payload is the raw query string for GET and the JSON body for POST.
func (c *BybitClient) signPayload(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + c.recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BybitClient) doRequest(ctx context.Context, method, path, query string, body []byte) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	payload := query
	if body != nil {
		payload = string(body)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", timestamp).
		SetHeader("X-BAPI-RECV-WINDOW", c.recvWindow).
		SetHeader("X-BAPI-SIGN", c.signPayload(timestamp, payload))

	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	// The query must go out byte-for-byte as it was signed, so it is
	// appended to the path rather than handed to resty, which would
	// re-encode it in sorted key order.
	url := path
	if query != "" {
		url = path + "?" + query
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}

	if apiResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit API error %d: %s", apiResp.RetCode, apiResp.RetMsg)
	}

	return &apiResp, nil
}

// -----------------------------
// ACCOUNT & POSITION METHODS
// -----------------------------

type positionListResult struct {
	List []struct {
		Symbol         string `json:"symbol"`
		Side           string `json:"side"`
		Size           string `json:"size"`
		AvgPrice       string `json:"avgPrice"`
		MarkPrice      string `json:"markPrice"`
		UnrealisedPnl  string `json:"unrealisedPnl"`
		CurRealisedPnl string `json:"curRealisedPnl"`
		Leverage       string `json:"leverage"`
		TradeMode      int    `json:"tradeMode"`
		LiqPrice       string `json:"liqPrice"`
	} `json:"list"`
}

func (c *BybitClient) GetPositions(ctx context.Context) ([]PositionData, error) {
	resp, err := c.doRequest(ctx, "GET", "/v5/position/list",
		fmt.Sprintf("category=%s&settleCoin=USDT", categoryLinear), nil)
	if err != nil {
		return nil, err
	}

	var parsed positionListResult
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}

	out := make([]PositionData, 0, len(parsed.List))
	for _, p := range parsed.List {
		size := parseFloat(p.Size)
		if size == 0 {
			continue
		}

		side := "long"
		if p.Side == "Sell" {
			side = "short"
		}

		marginMode := "cross"
		if p.TradeMode == 1 {
			marginMode = "isolated"
		}

		pos := PositionData{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(p.AvgPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealizedPnl: parseFloat(p.UnrealisedPnl),
			RealizedPnl:   parseFloat(p.CurRealisedPnl),
			Leverage:      parseFloat(p.Leverage),
			MarginMode:    marginMode,
		}
		if liq := parseFloat(p.LiqPrice); liq > 0 {
			pos.LiquidationPrice = &liq
		}
		out = append(out, pos)
	}
	return out, nil
}

type walletBalanceResult struct {
	List []struct {
		TotalEquity           string `json:"totalEquity"`
		TotalAvailableBalance string `json:"totalAvailableBalance"`
		TotalPerpUPL          string `json:"totalPerpUPL"`
	} `json:"list"`
}

func (c *BybitClient) GetWalletBalance(ctx context.Context) (*WalletBalance, error) {
	resp, err := c.doRequest(ctx, "GET", "/v5/account/wallet-balance", "accountType=UNIFIED", nil)
	if err != nil {
		return nil, err
	}

	var parsed walletBalanceResult
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.List) == 0 {
		return nil, fmt.Errorf("empty wallet balance response")
	}

	acct := parsed.List[0]
	return &WalletBalance{
		TotalEquity:      parseFloat(acct.TotalEquity),
		AvailableBalance: parseFloat(acct.TotalAvailableBalance),
		UnrealizedPnl:    parseFloat(acct.TotalPerpUPL),
	}, nil
}

// -----------------------------
// MARKET DATA METHODS
// -----------------------------

type klineResult struct {
	List [][]string `json:"list"`
}

// GetKlines returns bars oldest first. Bybit delivers them newest first;
// the order is reversed here so indicator code can consume them directly.
func (c *BybitClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = 200
	}

	resp, err := c.doRequest(ctx, "GET", "/v5/market/kline",
		fmt.Sprintf("category=%s&symbol=%s&interval=%s&limit=%d", categoryLinear, symbol, interval, limit), nil)
	if err != nil {
		return nil, err
	}

	var parsed klineResult
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}

	out := make([]Kline, 0, len(parsed.List))
	for i := len(parsed.List) - 1; i >= 0; i-- {
		row := parsed.List[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		out = append(out, Kline{
			Start:  time.UnixMilli(ms).UTC(),
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return out, nil
}

// -----------------------------
// TRADING METHODS
// -----------------------------

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (c *BybitClient) PlaceOrder(ctx context.Context, params OrderParams) (*OrderResult, error) {
	timeInForce := params.TimeInForce
	if timeInForce == "" {
		timeInForce = "GTC"
	}

	body := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      params.Symbol,
		"side":        params.Side,
		"orderType":   params.OrderType,
		"qty":         strconv.FormatFloat(params.Qty, 'f', -1, 64),
		"timeInForce": timeInForce,
		"orderLinkId": fmt.Sprintf("tc-%d", c.now().UnixNano()),
	}
	if params.Price != nil {
		body["price"] = strconv.FormatFloat(*params.Price, 'f', -1, 64)
	}
	if params.ReduceOnly {
		body["reduceOnly"] = true
	}

	b, _ := json.Marshal(body)

	logger.WithFields(map[string]interface{}{
		"component": "BybitClient",
		"symbol":    params.Symbol,
		"side":      params.Side,
		"type":      params.OrderType,
		"qty":       params.Qty,
		"reduce":    params.ReduceOnly,
	}).Info("Placing order")

	resp, err := c.doRequest(ctx, "POST", "/v5/order/create", "", b)
	if err != nil {
		return nil, err
	}

	var parsed orderCreateResult
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}
	return &OrderResult{OrderID: parsed.OrderID, OrderLinkID: parsed.OrderLinkID}, nil
}

func (c *BybitClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"orderId":  orderID,
	})
	_, err := c.doRequest(ctx, "POST", "/v5/order/cancel", "", body)
	return err
}

type openOrdersResult struct {
	List []struct {
		OrderID   string `json:"orderId"`
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		OrderType string `json:"orderType"`
		Qty       string `json:"qty"`
		Price     string `json:"price"`
	} `json:"list"`
}

func (c *BybitClient) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	query := fmt.Sprintf("category=%s&symbol=%s", categoryLinear, symbol)
	resp, err := c.doRequest(ctx, "GET", "/v5/order/realtime", query, nil)
	if err != nil {
		return nil, err
	}

	var parsed openOrdersResult
	if err := json.Unmarshal(resp.Result, &parsed); err != nil {
		return nil, err
	}

	out := make([]OpenOrder, 0, len(parsed.List))
	for _, o := range parsed.List {
		out = append(out, OpenOrder{
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			OrderType: o.OrderType,
			Qty:       parseFloat(o.Qty),
			Price:     parseFloat(o.Price),
		})
	}
	return out, nil
}

// -----------------------------
// RISK & MARGIN
// -----------------------------

func (c *BybitClient) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := strconv.FormatFloat(leverage, 'f', -1, 64)
	body, _ := json.Marshal(map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	_, err := c.doRequest(ctx, "POST", "/v5/position/set-leverage", "", body)
	return err
}

func (c *BybitClient) SetMarginMode(ctx context.Context, symbol, mode string, leverage float64) error {
	tradeMode := 0
	if mode == "isolated" {
		tradeMode = 1
	}

	lev := strconv.FormatFloat(leverage, 'f', -1, 64)
	body, _ := json.Marshal(map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"tradeMode":    tradeMode,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	_, err := c.doRequest(ctx, "POST", "/v5/position/switch-isolated", "", body)
	return err
}

func (c *BybitClient) SetTradingStop(ctx context.Context, symbol string, stopLoss, takeProfit *float64) error {
	body := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"positionIdx": 0,
	}
	if stopLoss != nil {
		body["stopLoss"] = strconv.FormatFloat(*stopLoss, 'f', -1, 64)
	}
	if takeProfit != nil {
		body["takeProfit"] = strconv.FormatFloat(*takeProfit, 'f', -1, 64)
	}

	b, _ := json.Marshal(body)
	_, err := c.doRequest(ctx, "POST", "/v5/position/trading-stop", "", b)
	return err
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
