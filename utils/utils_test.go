package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewCache(rc, time.Minute, zaptest.NewLogger(t)), mr
}

func TestCacheRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	type payload struct {
		Title string `json:"title"`
	}
	c.SetJSON(ctx, "cache:posts:list", []payload{{Title: "a"}})
	c.SetJSON(ctx, "cache:posts:detail:1", payload{Title: "b"})
	c.SetJSON(ctx, "other", payload{Title: "c"})

	var got []payload
	if !c.GetJSON(ctx, "cache:posts:list", &got) || len(got) != 1 || got[0].Title != "a" {
		t.Fatalf("expected cached list, got %v", got)
	}
	if ttl := mr.TTL("cache:posts:list"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	c.InvalidateByPrefix(ctx, "cache:posts:")
	if mr.Exists("cache:posts:list") || mr.Exists("cache:posts:detail:1") {
		t.Fatal("expected prefixed keys to be removed")
	}
	if !mr.Exists("other") {
		t.Fatal("unrelated key should survive")
	}

	c.Invalidate(ctx, "other")
	var p payload
	if c.GetJSON(ctx, "other", &p) {
		t.Fatal("expected miss after Invalidate")
	}
}

func TestCacheGeneration(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	if gen, ok := c.Generation(ctx, "gen"); !ok || gen != 0 {
		t.Fatalf("expected generation 0, got %d %v", gen, ok)
	}
	c.BumpGeneration(ctx, "gen")
	c.BumpGeneration(ctx, "gen")
	if gen, ok := c.Generation(ctx, "gen"); !ok || gen != 2 {
		t.Fatalf("expected generation 2, got %d %v", gen, ok)
	}

	if err := mr.Set("gen", "oops"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := c.Generation(ctx, "gen"); ok {
		t.Fatal("unreadable generation must disable caching")
	}
}

func TestCacheDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, NewCache(nil, 0, nil)} {
		c.SetJSON(ctx, "k", 1)
		var v int
		if c.GetJSON(ctx, "k", &v) {
			t.Fatal("disabled cache must miss")
		}
		c.InvalidateByPrefix(ctx, "k")
		c.Invalidate(ctx, "k")
		c.BumpGeneration(ctx, "g")
		if _, ok := c.Generation(ctx, "g"); ok {
			t.Fatal("disabled cache has no generation")
		}
	}
}

func TestCacheUndecodableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	if err := mr.Set("bad", "{"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var v map[string]any
	if c.GetJSON(ctx, "bad", &v) {
		t.Fatal("expected miss for malformed entry")
	}
}

func TestRecoveryWithZap(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(Ginzap(zap.New(core), time.RFC3339, true), RecoveryWithZap(zap.New(core), false))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Internal server error" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if logs.FilterMessage("[Recovery from panic]").Len() != 1 {
		t.Fatalf("expected panic to be logged, got %v", logs.All())
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), time.Second, time.Second)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	hookRan := make(chan struct{})
	srv.OnShutdown(func(context.Context) { close(hookRan) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/", srv.ListenerAddr()))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-hookRan:
	default:
		t.Fatal("shutdown hook did not run")
	}
}
