//go:build integration

package dolt

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcdolt "github.com/testcontainers/testcontainers-go/modules/dolt"
)

func TestServerModeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcdolt.Run(ctx, "dolthub/dolt-sql-server:1.32.4",
		tcdolt.WithDatabase("gimport"),
		tcdolt.WithUsername("root"),
		tcdolt.WithPassword(""),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start dolt container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("MappedPort: %v", err)
	}
	portNum, _ := strconv.Atoi(port.Port())

	store, err := New(ctx, &Config{
		ServerMode: true,
		ServerHost: host,
		ServerPort: portNum,
		ServerUser: "root",
		Database:   "gimport",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}
