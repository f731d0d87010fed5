package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mint"); got != testMint {
			t.Errorf("mint param = %q, want %q", got, testMint)
		}
		fmt.Fprintf(w, `{"priceUsd":"195.83","priceSol":"1","marketCapUsd":"91000000000","timestamp":%d}`,
			time.Now().Unix())
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)

	quote, err := c.GetQuote(context.Background(), testMint)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.PriceUSD.String() != "195.83" {
		t.Errorf("PriceUSD = %s, want 195.83", quote.PriceUSD)
	}
	if quote.MarketCapUSD.String() != "91000000000" {
		t.Errorf("MarketCapUSD = %s", quote.MarketCapUSD)
	}
}

func TestGetQuoteCaches(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"priceUsd":"0.5","timestamp":%d}`, time.Now().Unix())
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		if _, err := c.GetQuote(context.Background(), testMint); err != nil {
			t.Fatalf("GetQuote #%d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestGetQuoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)

	_, err := c.GetQuote(context.Background(), testMint)
	if !errors.Is(err, ErrNoQuote) {
		t.Errorf("err = %v, want ErrNoQuote", err)
	}
}

func TestGetQuoteRejectsZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"priceUsd":"0","timestamp":0}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)

	_, err := c.GetQuote(context.Background(), testMint)
	if !errors.Is(err, ErrNoQuote) {
		t.Errorf("err = %v, want ErrNoQuote", err)
	}
}

func TestGetQuoteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)

	if _, err := c.GetQuote(context.Background(), testMint); err == nil {
		t.Error("expected error for 429 response")
	}
}
