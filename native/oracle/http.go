package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches observations from a JSON price endpoint. The endpoint is
// expected to answer GET <endpoint>?symbol=<SYMBOL> with a body of the form
// {"price":"200000000000","decimals":8,"timestamp":1718000000}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPFeed constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), apiKey: strings.TrimSpace(apiKey)}
}

func (f *HTTPFeed) LatestPrice(symbol string) (PriceData, error) {
	if f == nil || f.endpoint == "" {
		return PriceData{}, fmt.Errorf("oracle: http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return PriceData{}, err
	}
	values := url.Values{}
	values.Set("symbol", normaliseSymbol(symbol))
	req.URL.RawQuery = values.Encode()
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return PriceData{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceData{}, fmt.Errorf("oracle: http feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Decimals  uint8  `json:"decimals"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceData{}, fmt.Errorf("oracle: http feed decode: %w", err)
	}
	trimmed := strings.TrimSpace(payload.Price)
	if trimmed == "" {
		return PriceData{}, fmt.Errorf("oracle: http feed returned empty price")
	}
	price, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return PriceData{}, fmt.Errorf("oracle: http feed returned invalid price %q", payload.Price)
	}
	return PriceData{
		Price:     price,
		Decimals:  payload.Decimals,
		UpdatedAt: time.Unix(payload.Timestamp, 0).UTC(),
	}, nil
}
