package arkham

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected an error without an API key")
	}
}

func TestFetchTransfers_MapsProviderRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("API-Key"); got != "test-key" {
			t.Errorf("expected API-Key header, got %q", got)
		}
		if got := r.URL.Query().Get("chains"); got != "ethereum" {
			t.Errorf("expected chains=ethereum, got %q", got)
		}
		fmt.Fprint(w, `{"transfers":[
			{"id":"tx1","fromAddress":{"address":"0xAA"},"toAddress":{"address":"0xBB"},
			 "tokenSymbol":"WASH","chain":"ethereum","unitValue":10,"historicalUSD":100,
			 "blockTimestamp":"2024-03-01T00:00:00Z"},
			{"id":"bad","fromAddress":{"address":"0xCC"},"toAddress":{"address":"0xDD"},
			 "blockTimestamp":"not-a-time"}
		],"count":2}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transfers, err := c.FetchTransfers(context.Background(), TransferQuery{Chains: "ethereum"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected the malformed record to be skipped, got %d transfers", len(transfers))
	}
	got := transfers[0]
	if got.ID != "tx1" || got.FromAddress != "0xAA" || got.USDValue != 100 {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if !got.Timestamp.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %s", got.Timestamp)
	}
}

func TestFetchTransfers_HonorsMaxTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always return a full page so pagination would continue forever.
		fmt.Fprint(w, `{"transfers":[`)
		for i := 0; i < 100; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":"t%s-%d","fromAddress":{"address":"a"},"toAddress":{"address":"b"},
				"blockTimestamp":"2024-03-01T00:00:00Z"}`, r.URL.Query().Get("offset"), i)
		}
		fmt.Fprint(w, `],"count":100}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transfers, err := c.FetchTransfers(context.Background(), TransferQuery{Chains: "ethereum", MaxTotal: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 100 {
		t.Fatalf("expected fetch to stop at MaxTotal, got %d", len(transfers))
	}
}

func TestFetchTransfers_UnauthorizedFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "wrong", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.FetchTransfers(context.Background(), TransferQuery{Chains: "ethereum"}); err == nil {
		t.Fatalf("expected an error on 401")
	}
}
