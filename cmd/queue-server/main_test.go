package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/health"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
)

func TestQueueServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	sim := core.DefaultConfig()
	sim.MaxQueueLength = 10
	sim.TickInterval = 20 * time.Millisecond
	cfg := Config{
		Seed:       5,
		AutoStart:  true,
		EventLimit: 100,
		Simulation: sim,
	}

	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, httpLis, grpcLis)
	}()

	base := "http://" + httpLis.Addr().String()
	var snap struct {
		Running bool `json:"running"`
		Tick    int  `json:"tick"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/snapshot")
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&snap)
			resp.Body.Close()
		}
		if err == nil && snap.Running && snap.Tick > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never reported a running tick: last snapshot %+v, err %v", snap, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: health.DriverService})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("driver health = %v, want SERVING", resp.GetStatus())
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestLoadSimulationConfig(t *testing.T) {
	cfg, err := loadSimulationConfig("")
	if err != nil {
		t.Fatalf("loadSimulationConfig(\"\"): %v", err)
	}
	if cfg != core.DefaultConfig() {
		t.Fatalf("config = %+v, want defaults", cfg)
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"max_hold_duration": 0}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadSimulationConfig(path); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("error = %v, want ErrInvalidConfiguration", err)
	}
}
