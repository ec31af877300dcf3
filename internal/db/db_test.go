package db

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewRejectsBadIdleTime(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "postgres://localhost:1/x?sslmode=disable", MaxIdleTime: "soon"})
	if err == nil || !strings.Contains(err.Error(), "max idle time") {
		t.Fatalf("expected idle time error, got %v", err)
	}
}

func TestNewGivesUpAfterAttempts(t *testing.T) {
	cfg := Config{
		Addr:            "postgres://nobody@127.0.0.1:1/x?sslmode=disable&connect_timeout=1",
		MaxIdleTime:     "1m",
		ConnectAttempts: 2,
		RetryDelay:      10 * time.Millisecond,
	}
	_, err := New(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "after 2 attempt(s)") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}
