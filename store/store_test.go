package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fennerhome/batteryctl/domain"
)

// TestStore_ReplaceAndAppend is an integration test against a real
// Postgres instance; it is skipped unless TEST_POSTGRES_CONN is set.
func TestStore_ReplaceAndAppend(t *testing.T) {
	connString := os.Getenv("TEST_POSTGRES_CONN")
	if connString == "" {
		t.Skip("skipping: TEST_POSTGRES_CONN not set")
	}

	s, err := Open(connString)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	now := time.Now().UTC()
	soc := 42.0
	snap := domain.SnapshotPayload{Timestamp: now, CurrentSocPercent: &soc, CurrentMode: domain.ModeAuto}
	if err := s.ReplaceSnapshot(ctx, snap); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}

	got, ok, err := s.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored snapshot")
	}
	if got.CurrentMode != domain.ModeAuto || got.CurrentSocPercent == nil || *got.CurrentSocPercent != 42.0 {
		t.Fatalf("got = %+v, want mode=auto soc=42", got)
	}

	point := domain.HistoryPoint{Timestamp: now, BatterySocPercent: &soc}
	if err := s.AppendHistory(ctx, point); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	recent, err := s.RecentHistory(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(recent) == 0 {
		t.Fatal("expected at least one history row")
	}
}
