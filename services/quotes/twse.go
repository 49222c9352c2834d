// Package quotes fetches realtime quote snapshots from the TWSE MIS API.
package quotes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"twse_alert_backend/models"
)

const (
	// DefaultBaseURL is the TWSE market information system endpoint.
	DefaultBaseURL = "https://mis.twse.com.tw"

	// The MIS API caps the number of instruments per request.
	chunkSize = 20

	requestTimeout = 10 * time.Second
)

// Client fetches batched realtime quotes.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a quote client against the public TWSE endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

// NewClientWithBaseURL creates a quote client against a custom endpoint,
// used by tests.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// misResponse is the getStockInfo.jsp response shape. Field keys are
// single letters: c=code, z=last price, y=previous close, g=queued bid
// volumes, f=queued ask volumes (multiple price levels joined by '_').
type misResponse struct {
	MsgArray []misEntry `json:"msgArray"`
}

type misEntry struct {
	Code      string `json:"c"`
	Last      string `json:"z"`
	PrevClose string `json:"y"`
	BidVols   string `json:"g"`
	AskVols   string `json:"f"`
}

// GetRealtimeQuotes returns a quote per resolvable code. Codes the
// exchange does not recognize are simply omitted from the result.
// Whether a code trades on TWSE or TPEx is not known up front, so both
// prefixes are queried and whichever answers wins.
func (c *Client) GetRealtimeQuotes(codes []string) (map[string]models.Quote, error) {
	results := make(map[string]models.Quote, len(codes))
	if len(codes) == 0 {
		return results, nil
	}

	for i := 0; i < len(codes); i += chunkSize {
		end := i + chunkSize
		if end > len(codes) {
			end = len(codes)
		}
		if err := c.fetchChunk(codes[i:end], results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *Client) fetchChunk(codes []string, results map[string]models.Quote) error {
	exCh := make([]string, 0, len(codes)*2)
	for _, code := range codes {
		exCh = append(exCh, "tse_"+code+".tw", "otc_"+code+".tw")
	}

	reqURL := fmt.Sprintf("%s/stock/api/getStockInfo.jsp?ex_ch=%s&json=1&delay=0&_=%d",
		c.baseURL,
		url.QueryEscape(strings.Join(exCh, "|")),
		time.Now().UnixMilli())

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read quote response: %w", err)
	}

	var parsed misResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to parse quote response: %w", err)
	}

	for _, entry := range parsed.MsgArray {
		if entry.Code == "" {
			continue
		}
		quote, ok := entryToQuote(entry)
		if !ok {
			continue
		}
		// tse and otc were both queried; keep the first real answer.
		if _, exists := results[entry.Code]; !exists {
			results[entry.Code] = quote
		}
	}
	return nil
}

// entryToQuote converts one MIS entry. Entries with no usable price at
// all are dropped.
func entryToQuote(entry misEntry) (models.Quote, bool) {
	price := safeDecimal(entry.Last)
	prevClose := safeDecimal(entry.PrevClose)
	if price.IsZero() {
		price = prevClose
	}
	if price.IsZero() {
		return models.Quote{}, false
	}

	var change, changePct decimal.Decimal
	if prevClose.IsPositive() {
		change = price.Sub(prevClose)
		changePct = change.Div(prevClose).Mul(decimal.NewFromInt(100)).Round(2)
	}

	bidVol := sumVolumes(entry.BidVols)
	askVol := sumVolumes(entry.AskVols)

	return models.Quote{
		Code:          entry.Code,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		BidVol:        bidVol,
		AskVol:        askVol,
		BidAskRatio:   bidAskRatio(bidVol, askVol),
	}, true
}

// sumVolumes totals a '_'-separated queued volume string. Dashes mean
// no orders at that level.
func sumVolumes(volStr string) int64 {
	if volStr == "" || volStr == "-" {
		return 0
	}
	var total int64
	for _, part := range strings.Split(volStr, "_") {
		if part == "" || part == "-" {
			continue
		}
		v, err := decimal.NewFromString(part)
		if err != nil {
			continue
		}
		total += v.IntPart()
	}
	return total
}

// bidAskRatio mirrors the upstream calculation: bid/ask to 2 decimal
// places, the raw bid volume when nothing is queued on the ask side,
// and 1.0 when both sides are empty.
func bidAskRatio(bidVol, askVol int64) decimal.Decimal {
	if askVol > 0 {
		return decimal.NewFromInt(bidVol).Div(decimal.NewFromInt(askVol)).Round(2)
	}
	if bidVol > 0 {
		return decimal.NewFromInt(bidVol)
	}
	return decimal.NewFromInt(1)
}

func safeDecimal(s string) decimal.Decimal {
	if s == "" || s == "-" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
