package confidence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/satter0827/market-decision-engine/internal/decision"
)

func TestNew_Factory(t *testing.T) {
	t.Run("None Returns Nil", func(t *testing.T) {
		p, err := New(Config{Provider: "none"})
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("Empty Means None", func(t *testing.T) {
		p, err := New(Config{})
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("HTTP Needs URL", func(t *testing.T) {
		_, err := New(Config{Provider: "http"})
		assert.Error(t, err)
	})

	t.Run("Unknown Provider Fails", func(t *testing.T) {
		_, err := New(Config{Provider: "oracle"})
		assert.Error(t, err)
	})
}

func TestHTTPProvider_Estimate(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"p_success":0.63,"ev_r":0.8,"uncertainty":0.25,"model_version":"conf-v1"}`))
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "http", APIURL: srv.URL, APIKey: "secret", Timeout: 2 * time.Second})
	assert.NoError(t, err)

	req := decision.EstimateRequest{Ticker: "7203.T", AsOf: "2026-08-21"}
	est, err := p.Estimate(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, 0.63, est.PSuccess)
	assert.Equal(t, 0.8, est.EVR)
	assert.Equal(t, 0.25, est.Uncertainty)
	assert.Equal(t, "conf-v1", est.ModelVersion)

	assert.Equal(t, "7203.T", gotPayload["ticker"])
	assert.Equal(t, "2026-08-21", gotPayload["as_of"])
	_, hasPlan := gotPayload["plan"]
	assert.True(t, hasPlan)
}

func TestHTTPProvider_FencedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("说明：\n```json\n{\"p_success\":0.55,\"ev_r\":0.6,\"uncertainty\":0.3}\n```\n"))
	}))
	defer srv.Close()

	p, _ := New(Config{Provider: "http", APIURL: srv.URL})
	est, err := p.Estimate(context.Background(), decision.EstimateRequest{Ticker: "BTCUSDT"})
	assert.NoError(t, err)
	assert.Equal(t, 0.55, est.PSuccess)
	assert.Equal(t, 0.3, est.Uncertainty)
}

func TestHTTPProvider_Failures(t *testing.T) {
	t.Run("Missing Field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"p_success":0.6,"ev_r":0.5}`))
		}))
		defer srv.Close()

		p, _ := New(Config{Provider: "http", APIURL: srv.URL})
		_, err := p.Estimate(context.Background(), decision.EstimateRequest{Ticker: "AAPL"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "uncertainty")
	})

	t.Run("Bad Status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		p, _ := New(Config{Provider: "http", APIURL: srv.URL})
		_, err := p.Estimate(context.Background(), decision.EstimateRequest{Ticker: "AAPL"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		p, _ := New(Config{Provider: "http", APIURL: srv.URL})
		_, err := p.Estimate(context.Background(), decision.EstimateRequest{Ticker: "AAPL"})
		assert.Error(t, err)
	})

	t.Run("Context Timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(`{"p_success":0.6,"ev_r":0.5,"uncertainty":0.2}`))
		}))
		defer srv.Close()

		p, _ := New(Config{Provider: "http", APIURL: srv.URL})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := p.Estimate(ctx, decision.EstimateRequest{Ticker: "AAPL"})
		assert.Error(t, err)
	})
}
