package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/fraudguard/fraudguard/internal/account"
)

func testService() (*Service, *account.MemoryStore, *MemoryStore) {
	accounts := account.NewMemoryStore()
	store := NewMemoryStore()
	tracker := NewTracker(store, accounts, nil, slog.Default(), nil)
	return NewService(store, tracker, accounts, nil, slog.Default()), accounts, store
}

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func TestLogDevice_BansOnDeviceChurn(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	// Four distinct IPs produce four distinct device hashes; the plain-IP
	// rule (threshold 2) trips first.
	var last *DeviceEventResult
	for i := 1; i <= 4; i++ {
		var err error
		last, err = svc.LogDevice(ctx, "user@example.com", fmt.Sprintf("10.0.0.%d", i), chromeUA)
		if err != nil {
			t.Fatalf("LogDevice: %v", err)
		}
	}

	if !last.Banned {
		t.Error("Expected subject to be banned after device churn")
	}
	if !last.HighRisk {
		t.Error("Expected high-risk flag")
	}

	acct, err := accounts.Get(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !acct.Banned() {
		t.Error("Account should be banned")
	}
}

func TestLogDevice_StableDeviceStaysClean(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := svc.LogDevice(ctx, "user@example.com", "10.0.0.1", chromeUA)
		if err != nil {
			t.Fatalf("LogDevice: %v", err)
		}
		if res.Banned || res.HighRisk {
			t.Fatal("Stable device should never flag")
		}
	}

	if _, err := accounts.Get(ctx, "user@example.com"); err != account.ErrNotFound {
		t.Errorf("No account record expected for clean traffic, got %v", err)
	}
}

func TestLogDevice_GuestNeverBanned(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		res, err := svc.LogDevice(ctx, "guest", fmt.Sprintf("10.0.0.%d", i), chromeUA)
		if err != nil {
			t.Fatalf("LogDevice: %v", err)
		}
		if res.Banned {
			t.Fatal("Guest must never be banned")
		}
	}
}

func TestLogDevice_ReportsExistingBan(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	if _, err := accounts.Ban(ctx, "user@example.com", "device_velocity"); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	res, err := svc.LogDevice(ctx, "user@example.com", "10.0.0.1", chromeUA)
	if err != nil {
		t.Fatalf("LogDevice: %v", err)
	}
	if !res.Banned {
		t.Error("Existing ban should be reported")
	}
}

func TestCheckoutClearance_AllowsNormalHistory(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	for _, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		err := accounts.AppendLogin(ctx, "user@example.com", account.LoginRecord{
			IP:        ip,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("AppendLogin: %v", err)
		}
	}

	res, err := svc.CheckoutClearance(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("CheckoutClearance: %v", err)
	}
	if !res.Allowed {
		t.Error("2 distinct IPs should clear")
	}
	if res.DistinctIPs != 2 {
		t.Errorf("Expected 2 distinct IPs, got %d", res.DistinctIPs)
	}
}

func TestCheckoutClearance_BansOnLoginIPVelocity(t *testing.T) {
	svc, accounts, store := testService()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		err := accounts.AppendLogin(ctx, "user@example.com", account.LoginRecord{
			IP:        fmt.Sprintf("10.0.0.%d", i),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("AppendLogin: %v", err)
		}
	}

	res, err := svc.CheckoutClearance(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("CheckoutClearance: %v", err)
	}
	if res.Allowed {
		t.Error("4 distinct login IPs in window should refuse clearance")
	}
	if !res.Banned {
		t.Error("Expected ban")
	}

	reasons := store.BanReasons("user@example.com")
	if len(reasons) != 1 || reasons[0].Reason != "login_velocity" {
		t.Errorf("Expected one login_velocity ban reason, got %v", reasons)
	}
}

func TestCheckoutClearance_StaleIPsIgnored(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	// Old logins fall outside the 10-minute window
	for i := 1; i <= 4; i++ {
		err := accounts.AppendLogin(ctx, "user@example.com", account.LoginRecord{
			IP:        fmt.Sprintf("10.0.0.%d", i),
			CreatedAt: time.Now().UTC().Add(-time.Hour),
		})
		if err != nil {
			t.Fatalf("AppendLogin: %v", err)
		}
	}

	res, err := svc.CheckoutClearance(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("CheckoutClearance: %v", err)
	}
	if !res.Allowed {
		t.Error("Stale login IPs should not refuse clearance")
	}
}

func TestCheckoutClearance_BannedAccountRefused(t *testing.T) {
	svc, accounts, _ := testService()
	ctx := context.Background()

	if _, err := accounts.Ban(ctx, "user@example.com", "device_velocity"); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	res, err := svc.CheckoutClearance(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("CheckoutClearance: %v", err)
	}
	if res.Allowed {
		t.Error("Banned account must be refused")
	}
	if !res.Banned {
		t.Error("Expected banned flag")
	}
}
