package cache

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, prefix string, retry RetryPolicy) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c := NewRedisCacheFromClient(client, prefix, retry)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "bt:", RetryPolicy{Attempts: 1})

	data, hit, err := c.Get(ctx, "missing")
	if err != nil || hit || data != nil {
		t.Fatalf("Get(missing) = %q, %v, %v; want miss", data, hit, err)
	}

	if err := c.Set(ctx, "k", []byte("value"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := mr.Get("bt:k"); err != nil || got != "value" {
		t.Errorf("stored bt:k = %q, %v", got, err)
	}
	if mr.Exists("k") {
		t.Error("key stored without prefix")
	}
	if ttl := mr.TTL("bt:k"); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}

	data, hit, err = c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "value" {
		t.Fatalf("Get(k) = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("hit after Delete")
	}
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "bt:", RetryPolicy{Attempts: 1})

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("bt:k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("miss before expiry")
	}

	mr.FastForward(2 * time.Minute)
	data, hit, err := c.Get(ctx, "k")
	if err != nil || hit {
		t.Errorf("Get after expiry = %q, %v, %v; want miss", data, hit, err)
	}
}

func TestRedisCacheClear(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "bt:", RetryPolicy{Attempts: 1})

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := mr.Set("other:a", "keep"); err != nil {
		t.Fatal(err)
	}

	n, err := c.Clear(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Clear() = %d, %v; want 3", n, err)
	}
	if !mr.Exists("other:a") {
		t.Error("Clear removed a key outside its prefix")
	}
	if mr.Exists("bt:a") {
		t.Error("bt:a survived Clear")
	}

	bare, _ := newTestRedis(t, "", RetryPolicy{Attempts: 1})
	if _, err := bare.Clear(ctx); err == nil {
		t.Error("Clear without prefix should fail")
	}
}

func TestRedisCacheErrors(t *testing.T) {
	ctx := context.Background()

	c, mr := newTestRedis(t, "bt:", RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	mr.SetError("ERR server says no")
	if _, _, err := c.Get(ctx, "k"); err == nil || IsRetryable(err) {
		t.Errorf("server error = %v; want non-retryable", err)
	}
	mr.SetError("")

	mr.Close()
	_, _, err := c.Get(ctx, "k")
	if err == nil || !IsRetryable(err) {
		t.Errorf("closed server error = %v; want retryable", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); !IsRetryable(err) {
		t.Errorf("Set on closed server = %v; want retryable", err)
	}
}

func TestNewRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), RedisOptions{Addr: addr})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewRedisCache(%s) = %v; want ErrUnavailable", addr, err)
	}

	mr2 := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), RedisOptions{Addr: mr2.Addr(), Prefix: "p:"})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()
	if c.retry != DefaultRetryPolicy() {
		t.Errorf("retry = %+v, want default", c.retry)
	}
}

func TestRedisErr(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"miss", redis.Nil, false},
		{"network", opErr, true},
		{"eof", io.EOF, true},
		{"other", errors.New("WRONGTYPE"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redisErr(tt.err)
			if IsRetryable(got) != tt.retryable {
				t.Errorf("IsRetryable(redisErr(%v)) = %v, want %v", tt.err, !tt.retryable, tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("redisErr(%v) lost the cause: %v", tt.err, got)
			}
		})
	}
}
