//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	client, err := NewRedisClient(ctx, RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStore_RoundTripAndPrefixDelete(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, ok, err := s.Get(ctx, "advocates:none"); ok || err != nil {
		t.Fatalf("Get(miss) = %v, %v", ok, err)
	}

	for i := 0; i < 600; i++ {
		if err := s.Set(ctx, fmt.Sprintf("advocates:k%d", i), []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	_ = s.Set(ctx, "other:k", []byte("y"), time.Minute)

	n, err := s.DeletePrefix(ctx, "advocates:")
	if err != nil || n != 600 {
		t.Fatalf("DeletePrefix() = %d, %v; want 600, nil", n, err)
	}
	if got, ok, _ := s.Get(ctx, "other:k"); !ok || string(got) != "y" {
		t.Error("keys outside the prefix must survive")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	_ = s.Set(ctx, "advocates:ttl", []byte("x"), time.Second)
	time.Sleep(1500 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "advocates:ttl"); ok {
		t.Error("entry should have expired")
	}
}
