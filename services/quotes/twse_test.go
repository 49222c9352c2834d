package quotes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newStubServer(t *testing.T, payload string) (*httptest.Server, *[]string) {
	t.Helper()
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/api/getStockInfo.jsp" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		requested = append(requested, r.URL.Query().Get("ex_ch"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &requested
}

func TestGetRealtimeQuotesParsesEntry(t *testing.T) {
	payload := `{"msgArray":[{"c":"2330","z":"605.5","y":"600.0","g":"100_200_-","f":"50_25"}]}`
	srv, requested := newStubServer(t, payload)

	client := NewClientWithBaseURL(srv.URL)
	quotes, err := client.GetRealtimeQuotes([]string{"2330"})
	if err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}

	q, ok := quotes["2330"]
	if !ok {
		t.Fatalf("missing quote for 2330: %v", quotes)
	}
	if q.Price.String() != "605.5" {
		t.Errorf("price = %s, want 605.5", q.Price)
	}
	if q.Change.String() != "5.5" {
		t.Errorf("change = %s, want 5.5", q.Change)
	}
	if q.ChangePercent.String() != "0.92" {
		t.Errorf("change percent = %s, want 0.92", q.ChangePercent)
	}
	if q.BidVol != 300 {
		t.Errorf("bid volume = %d, want 300", q.BidVol)
	}
	if q.AskVol != 75 {
		t.Errorf("ask volume = %d, want 75", q.AskVol)
	}
	if q.BidAskRatio.String() != "4" {
		t.Errorf("bid/ask ratio = %s, want 4", q.BidAskRatio)
	}

	// A single code queries both the listed and OTC boards.
	if len(*requested) != 1 {
		t.Fatalf("expected one request, got %d", len(*requested))
	}
	exCh := (*requested)[0]
	if !strings.Contains(exCh, "tse_2330.tw") || !strings.Contains(exCh, "otc_2330.tw") {
		t.Errorf("ex_ch must carry both board prefixes: %q", exCh)
	}
}

func TestGetRealtimeQuotesPriceFallsBackToPrevClose(t *testing.T) {
	// No trade yet: z is "-", the previous close stands in.
	payload := `{"msgArray":[{"c":"2603","z":"-","y":"150.0","g":"-","f":"-"}]}`
	srv, _ := newStubServer(t, payload)

	client := NewClientWithBaseURL(srv.URL)
	quotes, err := client.GetRealtimeQuotes([]string{"2603"})
	if err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}

	q, ok := quotes["2603"]
	if !ok {
		t.Fatalf("missing quote for 2603")
	}
	if q.Price.String() != "150" {
		t.Errorf("price = %s, want 150", q.Price)
	}
	if !q.Change.IsZero() || !q.ChangePercent.IsZero() {
		t.Errorf("change must be zero without a trade, got %s / %s", q.Change, q.ChangePercent)
	}
	if q.BidAskRatio.String() != "1" {
		t.Errorf("empty book ratio = %s, want 1", q.BidAskRatio)
	}
}

func TestGetRealtimeQuotesRatioFallsBackToBidVolume(t *testing.T) {
	payload := `{"msgArray":[{"c":"2317","z":"100.0","y":"100.0","g":"40_10","f":"-"}]}`
	srv, _ := newStubServer(t, payload)

	client := NewClientWithBaseURL(srv.URL)
	quotes, err := client.GetRealtimeQuotes([]string{"2317"})
	if err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}
	if got := quotes["2317"].BidAskRatio.String(); got != "50" {
		t.Errorf("ratio with empty ask side = %s, want raw bid volume 50", got)
	}
}

func TestGetRealtimeQuotesOmitsUnresolvedCodes(t *testing.T) {
	// The exchange answers with an empty entry for unknown codes and a
	// priceless entry for halted ones; neither yields a quote.
	payload := `{"msgArray":[{"c":"","z":"-","y":"-"},{"c":"9999","z":"-","y":"-"},{"c":"2330","z":"600.0","y":"600.0"}]}`
	srv, _ := newStubServer(t, payload)

	client := NewClientWithBaseURL(srv.URL)
	quotes, err := client.GetRealtimeQuotes([]string{"9999", "2330"})
	if err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected only the resolvable code, got %v", quotes)
	}
	if _, ok := quotes["2330"]; !ok {
		t.Fatal("missing quote for 2330")
	}
}

func TestGetRealtimeQuotesChunksLargeBatches(t *testing.T) {
	payload := `{"msgArray":[]}`
	srv, requested := newStubServer(t, payload)

	codes := make([]string, 45)
	for i := range codes {
		codes[i] = "1" + strings.Repeat("0", 2) + string(rune('a'+i%26))
	}

	client := NewClientWithBaseURL(srv.URL)
	if _, err := client.GetRealtimeQuotes(codes); err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}
	// 45 codes at 20 per request.
	if len(*requested) != 3 {
		t.Fatalf("expected 3 chunked requests, got %d", len(*requested))
	}
}

func TestGetRealtimeQuotesFailsBatchOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewClientWithBaseURL(srv.URL)
	if _, err := client.GetRealtimeQuotes([]string{"2330"}); err == nil {
		t.Fatal("expected an error on HTTP 503")
	}
}

func TestGetRealtimeQuotesEmptyInput(t *testing.T) {
	srv, requested := newStubServer(t, `{"msgArray":[]}`)

	client := NewClientWithBaseURL(srv.URL)
	quotes, err := client.GetRealtimeQuotes(nil)
	if err != nil {
		t.Fatalf("GetRealtimeQuotes: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("expected empty result, got %v", quotes)
	}
	if len(*requested) != 0 {
		t.Errorf("empty input must not hit the network, requests=%d", len(*requested))
	}
}
