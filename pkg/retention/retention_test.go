package retention

import (
	"context"
	"testing"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

func TestSweepOncePurgesIdleThreads(t *testing.T) {
	st := store.NewMemory()
	now := time.Now().UTC()

	stale := models.Thread{ID: "t-old", Title: "old", CreatedAt: now.Add(-72 * time.Hour), UpdatedAt: now.Add(-72 * time.Hour)}
	fresh := models.Thread{ID: "t-new", Title: "new", CreatedAt: now, UpdatedAt: now}
	if err := st.CreateThread(stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateThread(fresh); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := SweepOnce(st, 24*time.Hour); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := st.GetThread("t-old"); err == nil {
		t.Fatalf("stale thread should be purged")
	}
	if _, err := st.GetThread("t-new"); err != nil {
		t.Fatalf("fresh thread should survive: %v", err)
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	st := store.NewMemory()
	if _, err := Start(context.Background(), st, Options{Cron: "not a cron"}); err == nil {
		t.Fatalf("expected error for invalid cron")
	}
}

func TestStartDefaultCron(t *testing.T) {
	st := store.NewMemory()
	cancel, err := Start(context.Background(), st, Options{Period: time.Hour})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}
