package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/cache"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/config"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store/memory"
)

func testConfig() config.Config {
	return config.Config{
		Port:                   "0",
		AllowedOrigin:          "http://127.0.0.1:3000",
		AuthSecret:             strings.Repeat("k", config.MinAuthSecretLength),
		AccessTokenTTLMinutes:  60,
		NegotiationTTLHours:    24,
		ExpirySweepSpec:        "@hourly",
		DemandCacheTTLSeconds:  60,
		TrustCacheTTLSeconds:   300,
		LogLevel:               "info",
		LoginAttemptsPerMinute: 5,
	}
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no closer for the in-memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected in-memory store, got %T", repo)
	}
}

func TestOpenCacheWithoutRedisIsNoop(t *testing.T) {
	c, closeFn := openCache(context.Background(), testConfig(), zap.NewNop())
	if closeFn != nil {
		t.Fatalf("expected no closer for noop cache")
	}
	if _, ok := c.(cache.Noop); !ok {
		t.Fatalf("expected noop cache, got %T", c)
	}
}

func TestBuildServesHealthAndMetrics(t *testing.T) {
	a, err := build(context.Background(), testConfig(), zap.NewNop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close(zap.NewNop())

	for _, path := range []string{"/healthz", "/metrics"} {
		res := httptest.NewRecorder()
		a.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, res.Code)
		}
	}

	if err := a.sweeper.Start(); err != nil {
		t.Fatalf("start sweeper: %v", err)
	}
	if next := a.sweeper.Next(); next.IsZero() || next.Minute() != 0 {
		t.Fatalf("expected an hourly sweep on the hour, got %v", next)
	}
	a.sweeper.Stop()
}
