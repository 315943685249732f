package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type mockBanner struct {
	mu     sync.Mutex
	banned map[string]bool
	calls  int
}

func newMockBanner() *mockBanner {
	return &mockBanner{banned: make(map[string]bool)}
}

func (m *mockBanner) Ban(_ context.Context, subjectID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.banned[subjectID] {
		return false, nil
	}
	m.banned[subjectID] = true
	return true, nil
}

func testTracker(banner Banner) (*Tracker, *MemoryStore) {
	store := NewMemoryStore()
	return NewTracker(store, banner, nil, slog.Default(), nil), store
}

func TestMemoryStore_CountDistinct(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	events := []*FingerprintEvent{
		{ID: "e1", SubjectID: "a@x.com", Fingerprint: "fp1", Kind: KindDevice, CreatedAt: now},
		{ID: "e2", SubjectID: "a@x.com", Fingerprint: "fp2", Kind: KindDevice, CreatedAt: now},
		{ID: "e3", SubjectID: "a@x.com", Fingerprint: "fp1", Kind: KindDevice, CreatedAt: now},                        // dup fingerprint
		{ID: "e4", SubjectID: "a@x.com", Fingerprint: "fp3", Kind: KindDevice, CreatedAt: now.Add(-20 * time.Minute)}, // outside window
		{ID: "e5", SubjectID: "b@x.com", Fingerprint: "fp4", Kind: KindDevice, CreatedAt: now},                        // other subject
		{ID: "e6", SubjectID: "a@x.com", Fingerprint: "fp5", Kind: KindPlainIP, CreatedAt: now},                       // other kind
	}
	for _, ev := range events {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.ID, err)
		}
	}

	count, err := store.CountDistinct(ctx, "a@x.com", KindDevice, 10*time.Minute)
	if err != nil {
		t.Fatalf("CountDistinct: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 distinct device fingerprints in window, got %d", count)
	}
}

func TestMemoryStore_RejectsEmptyFingerprint(t *testing.T) {
	store := NewMemoryStore()
	err := store.Append(context.Background(), &FingerprintEvent{SubjectID: "a@x.com", Kind: KindDevice})
	if err != ErrEmptyFingerprint {
		t.Errorf("Expected ErrEmptyFingerprint, got %v", err)
	}
}

func TestTracker_BelowThreshold_NoBan(t *testing.T) {
	banner := newMockBanner()
	tracker, _ := testTracker(banner)
	ctx := context.Background()

	// DeviceVelocity allows up to 3 distinct fingerprints
	for i := 1; i <= 3; i++ {
		res, err := tracker.LogAndCheck(ctx, "user@example.com", fmt.Sprintf("fp%d", i), KindDevice)
		if err != nil {
			t.Fatalf("LogAndCheck: %v", err)
		}
		if res.Exceeded {
			t.Errorf("Threshold should not be exceeded at %d distinct fingerprints", i)
		}
		if res.Banned {
			t.Error("No ban expected below threshold")
		}
	}
	if banner.calls != 0 {
		t.Errorf("Banner should not be called, got %d calls", banner.calls)
	}
}

func TestTracker_ExceedsThreshold_Bans(t *testing.T) {
	banner := newMockBanner()
	tracker, store := testTracker(banner)
	ctx := context.Background()

	var last *Result
	for i := 1; i <= 4; i++ {
		var err error
		last, err = tracker.LogAndCheck(ctx, "user@example.com", fmt.Sprintf("fp%d", i), KindDevice)
		if err != nil {
			t.Fatalf("LogAndCheck: %v", err)
		}
	}

	if !last.Exceeded {
		t.Error("4 distinct fingerprints should exceed the device threshold of 3")
	}
	if !last.Banned {
		t.Error("Expected the exceeding event to perform the ban")
	}
	if !banner.banned["user@example.com"] {
		t.Error("Subject should be banned")
	}

	reasons := store.BanReasons("user@example.com")
	if len(reasons) != 1 {
		t.Fatalf("Expected 1 ban audit entry, got %d", len(reasons))
	}
	if reasons[0].Reason != "device_velocity" {
		t.Errorf("Expected reason device_velocity, got %q", reasons[0].Reason)
	}
}

func TestTracker_RepeatFingerprint_CountsOnce(t *testing.T) {
	banner := newMockBanner()
	tracker, _ := testTracker(banner)
	ctx := context.Background()

	// Same fingerprint many times never trips the rule
	for i := 0; i < 10; i++ {
		res, err := tracker.LogAndCheck(ctx, "user@example.com", "fp-same", KindDevice)
		if err != nil {
			t.Fatalf("LogAndCheck: %v", err)
		}
		if res.Count != 1 {
			t.Fatalf("Expected count 1, got %d", res.Count)
		}
	}
	if banner.calls != 0 {
		t.Error("Repeat fingerprint should never trigger a ban")
	}
}

func TestTracker_GuestExempt(t *testing.T) {
	banner := newMockBanner()
	tracker, _ := testTracker(banner)
	ctx := context.Background()

	for _, subject := range []string{"guest", ""} {
		for i := 1; i <= 6; i++ {
			res, err := tracker.LogAndCheck(ctx, subject, fmt.Sprintf("%s-fp%d", subject, i), KindDevice)
			if err != nil {
				t.Fatalf("LogAndCheck: %v", err)
			}
			if res.Banned {
				t.Errorf("Guest subject %q must never be banned", subject)
			}
		}
	}
	if banner.calls != 0 {
		t.Errorf("Banner should not be called for guests, got %d calls", banner.calls)
	}
}

func TestTracker_BanIsIdempotent(t *testing.T) {
	banner := newMockBanner()
	tracker, store := testTracker(banner)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		if _, err := tracker.LogAndCheck(ctx, "user@example.com", fmt.Sprintf("fp%d", i), KindDevice); err != nil {
			t.Fatalf("LogAndCheck: %v", err)
		}
	}

	// Events 4, 5, 6 all exceed the threshold but only one transition fires
	if got := len(store.BanReasons("user@example.com")); got != 1 {
		t.Errorf("Expected exactly 1 ban audit entry, got %d", got)
	}
}

func TestTracker_ConcurrentTriggers_SingleBan(t *testing.T) {
	banner := newMockBanner()
	tracker, store := testTracker(banner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = tracker.LogAndCheck(ctx, "user@example.com", fmt.Sprintf("fp%d", n), KindDevice)
		}(i)
	}
	wg.Wait()

	banner.mu.Lock()
	banned := banner.banned["user@example.com"]
	banner.mu.Unlock()
	if !banned {
		t.Fatal("Subject should be banned after concurrent triggers")
	}
	// The banner is the idempotency point: one true transition
	if got := len(store.BanReasons("user@example.com")); got != 1 {
		t.Errorf("Expected exactly 1 ban audit entry under concurrency, got %d", got)
	}
}

func TestTracker_PlainIPRule(t *testing.T) {
	banner := newMockBanner()
	tracker, _ := testTracker(banner)
	ctx := context.Background()

	// PlainIPVelocity threshold is 2
	res, err := tracker.LogAndCheck(ctx, "user@example.com", "1.1.1.1", KindPlainIP)
	if err != nil {
		t.Fatalf("LogAndCheck: %v", err)
	}
	if res.Exceeded {
		t.Error("1 IP should not exceed")
	}

	_, _ = tracker.LogAndCheck(ctx, "user@example.com", "2.2.2.2", KindPlainIP)
	res, err = tracker.LogAndCheck(ctx, "user@example.com", "3.3.3.3", KindPlainIP)
	if err != nil {
		t.Fatalf("LogAndCheck: %v", err)
	}
	if !res.Exceeded {
		t.Error("3 distinct IPs should exceed the plain-IP threshold of 2")
	}
	if !res.Banned {
		t.Error("Expected ban with reason plain_ip_velocity")
	}
}
