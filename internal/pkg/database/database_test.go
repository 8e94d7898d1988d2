package database

import (
	"context"
	"testing"
)

func TestNewRedisEmptyURLDisablesRedis(t *testing.T) {
	client, err := NewRedis(context.Background(), "")
	if err != nil || client != nil {
		t.Fatalf("expected nil client and nil error, got %v, %v", client, err)
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "://not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewPostgresUnreachable(t *testing.T) {
	// Port 1 is never a PostgreSQL server; the ping fails fast.
	_, err := NewPostgres(context.Background(), "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", DefaultPool)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
