package pgmodel

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func TestHealth(t *testing.T) {
	client := newStubClient(t, &stubState{})

	status := client.Health(context.Background())

	if !status.Healthy {
		t.Errorf("Expected healthy status, got error %q", status.Error)
	}
	if status.State != StateConnected {
		t.Errorf("Expected state 'connected', got %s", status.State)
	}
	if status.Error != "" {
		t.Errorf("Expected no error, got %q", status.Error)
	}
	if status.Latency > time.Second {
		t.Errorf("Latency seems too high: %v", status.Latency)
	}
	if status.PoolStats.OpenConnections < 1 {
		t.Errorf("Expected at least one open connection, got %d", status.PoolStats.OpenConnections)
	}
}

func TestHealth_NotConnected(t *testing.T) {
	client, err := New(DefaultConfig(testParams))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	status := client.Health(context.Background())

	if status.Healthy {
		t.Error("Expected unhealthy status before Connect")
	}
	if status.State != StateDisconnected {
		t.Errorf("Expected state 'disconnected', got %s", status.State)
	}
	if !strings.Contains(status.Error, "not connected") {
		t.Errorf("Expected 'not connected' in error, got %q", status.Error)
	}
	if status.PoolStats.OpenConnections != 0 {
		t.Errorf("Expected no open connections, got %d", status.PoolStats.OpenConnections)
	}
}

func TestIsHealthy(t *testing.T) {
	client := newStubClient(t, &stubState{})
	ctx := context.Background()

	if !client.IsHealthy(ctx) {
		t.Error("Expected connected client to be healthy")
	}

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if client.IsHealthy(ctx) {
		t.Error("Expected disconnected client to be unhealthy")
	}
}

func TestPoolStatsFromSQL(t *testing.T) {
	stats := sql.DBStats{
		MaxOpenConnections: 10,
		OpenConnections:    3,
		InUse:              1,
		Idle:               2,
		WaitCount:          4,
		WaitDuration:       5 * time.Millisecond,
		MaxIdleClosed:      6,
		MaxIdleTimeClosed:  7,
		MaxLifetimeClosed:  8,
	}

	want := PoolStats{
		MaxOpenConnections: 10,
		OpenConnections:    3,
		InUse:              1,
		Idle:               2,
		WaitCount:          4,
		WaitDuration:       5 * time.Millisecond,
		MaxIdleClosed:      6,
		MaxIdleTimeClosed:  7,
		MaxLifetimeClosed:  8,
	}
	if got := PoolStatsFromSQL(stats); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
