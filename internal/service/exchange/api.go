package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	pkghttp "FinTrade/pkg/http"
)

const (
	pathKline         = "/v5/market/kline"
	pathInstruments   = "/v5/market/instruments-info"
	pathWalletBalance = "/v5/account/wallet-balance"
	pathPositionList  = "/v5/position/list"
	pathOrderCreate   = "/v5/order/create"
)

// apiResponse is the v5 response envelope. retCode 0 means success;
// anything else carries the error in retMsg.
type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (g *Gateway) get(ctx context.Context, path string, vals url.Values, signed bool, dest any) error {
	if !g.limiter.Allow(path, g.cfg.RateBurst, g.cfg.RatePerSec) {
		return fmt.Errorf("rate limit exceeded for %s", path)
	}
	// Query is encoded up front so the signed payload and the request
	// carry the exact same byte sequence.
	query := vals.Encode()
	opts := &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    g.cfg.BaseURL + path + "?" + query,
	}
	if signed {
		opts.Headers = g.authHeaders(query)
	}
	return g.call(ctx, opts, dest)
}

func (g *Gateway) post(ctx context.Context, path string, body any, dest any) error {
	if !g.limiter.Allow(path, g.cfg.RateBurst, g.cfg.RatePerSec) {
		return fmt.Errorf("rate limit exceeded for %s", path)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	opts := &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     g.cfg.BaseURL + path,
		Headers: g.authHeaders(string(raw)),
		Body:    raw,
	}
	return g.call(ctx, opts, dest)
}

func (g *Gateway) call(ctx context.Context, opts *pkghttp.RequestOptions, dest any) error {
	var env apiResponse
	if err := g.http.SendAndParse(ctx, opts, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("api error %d: %s", env.RetCode, env.RetMsg)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, dest); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// authHeaders builds the v5 signature headers. The signed payload is
// the query string for GET requests and the raw JSON body for POST.
func (g *Gateway) authHeaders(payload string) map[string]string {
	ts := strconv.FormatInt(g.now().UnixMilli(), 10)
	recv := strconv.FormatInt(g.cfg.RecvWindow.Milliseconds(), 10)
	return map[string]string{
		"X-BAPI-API-KEY":     g.cfg.APIKey,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": recv,
		"X-BAPI-SIGN":        sign(g.cfg.APISecret, ts+g.cfg.APIKey+recv+payload),
	}
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// numeric decodes the string-encoded numbers of the v5 API. Empty
// strings decode to zero.
type numeric float64

func (n *numeric) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse numeric %q: %w", s, err)
	}
	*n = numeric(v)
	return nil
}

// klineResult rows are newest first:
// [startTimeMs, open, high, low, close, volume, turnover], all strings.
type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

func (r *klineResult) window(symbol string, tf drepo.Timeframe) (*models.MarketWindow, error) {
	n := len(r.List)
	w := &models.MarketWindow{
		Symbol:    symbol,
		Timeframe: string(tf),
		Time:      make([]time.Time, n),
		Open:      make([]float64, n),
		High:      make([]float64, n),
		Low:       make([]float64, n),
		Close:     make([]float64, n),
		Volume:    make([]float64, n),
	}
	for i, row := range r.List {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d: want at least 6 fields, got %d", i, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline row %d start time: %w", i, err)
		}
		j := n - 1 - i
		w.Time[j] = time.UnixMilli(ms).UTC()
		for k, dst := range []*float64{&w.Open[j], &w.High[j], &w.Low[j], &w.Close[j], &w.Volume[j]} {
			v, err := strconv.ParseFloat(row[k+1], 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, k+1, err)
			}
			*dst = v
		}
	}
	return w, nil
}

type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coins       []struct {
			Coin          string  `json:"coin"`
			WalletBalance numeric `json:"walletBalance"`
		} `json:"coin"`
	} `json:"list"`
}

type positionResult struct {
	List []struct {
		Symbol         string  `json:"symbol"`
		Side           string  `json:"side"`
		Size           numeric `json:"size"`
		AvgPrice       numeric `json:"avgPrice"`
		MarkPrice      numeric `json:"markPrice"`
		UnrealisedPnl  numeric `json:"unrealisedPnl"`
		CurRealisedPnl numeric `json:"curRealisedPnl"`
		UpdatedTime    string  `json:"updatedTime"`
	} `json:"list"`
}

// instrumentsResult carries the lot filters used for quantity rounding.
// Spot instruments report basePrecision, derivatives report qtyStep.
type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
			QtyStep       string `json:"qtyStep"`
			MinOrderQty   string `json:"minOrderQty"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

type orderCreateRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// marketSymbol converts the engine's "BTC/USDT" form to the exchange's
// concatenated form.
func marketSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func klineInterval(tf drepo.Timeframe) string {
	switch tf {
	case drepo.TF5m:
		return "5"
	case drepo.TF15m:
		return "15"
	case drepo.TF1h:
		return "60"
	default:
		return "1"
	}
}

func orderSide(side models.OrderSide) (string, error) {
	switch side {
	case models.SideBuy:
		return "Buy", nil
	case models.SideSell:
		return "Sell", nil
	default:
		return "", fmt.Errorf("unsupported order side %q", side)
	}
}

func orderType(t models.OrderType) (string, error) {
	switch t {
	case models.OrderMarket, "":
		return "Market", nil
	case models.OrderLimit:
		return "Limit", nil
	default:
		return "", fmt.Errorf("unsupported order type %q", t)
	}
}
