package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fraudguard/fraudguard/internal/config"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory storage)
func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		GeoAPIBase:           config.DefaultGeoAPIBase,
		BlockThreshold:       config.DefaultBlockThreshold,
		ComboThreshold:       config.DefaultComboThreshold,
		LoginFlagScore:       config.DefaultLoginFlagScore,
		ScanDangerousMax:     config.DefaultScanDangerousMax,
		ScanSuspiciousMax:    config.DefaultScanSuspiciousMax,
		DeviceVelocityWindow: config.DefaultDeviceVelocityWindow,
		DeviceVelocityMax:    3,
		PlainIPWindow:        config.DefaultPlainIPWindow,
		PlainIPMax:           2,
		LoginIPWindow:        config.DefaultLoginIPWindow,
		LoginIPMax:           3,
		OTPTTL:               10 * time.Minute,
		OTPMaxAttempts:       3,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}

	checks, ok := resp["checks"].(map[string]interface{})
	if !ok || checks["database"] != "healthy" {
		t.Errorf("Expected healthy database check, got %v", resp["checks"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/v1/assess/checkout",
		"POST:/v1/assess/login",
		"POST:/v1/assess/scan",
		"GET:/v1/assessments",
		"POST:/v1/events/device",
		"POST:/v1/checkout/clearance",
		"POST:/v1/otp",
		"POST:/v1/otp/verify",
		"GET:/v1/status",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Status endpoint test
// ---------------------------------------------------------------------------

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/status", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	// No HF token or Mongo URI in the test config
	if resp["ai"] != false {
		t.Errorf("Expected ai=false, got %v", resp["ai"])
	}
	if resp["db"] != false {
		t.Errorf("Expected db=false, got %v", resp["db"])
	}
}

// ---------------------------------------------------------------------------
// Assessment flow through the full stack
// ---------------------------------------------------------------------------

func TestCheckoutAssessmentEndToEnd(t *testing.T) {
	s := newTestServer(t)

	body := `{"email":"shopper@example.com","items":[{"name":"notebook","quantity":2}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["decision"] != "allow" {
		t.Errorf("Expected allow for a small clean cart, got %v", resp["decision"])
	}
	if resp["id"] == nil || resp["id"] == "" {
		t.Error("Expected assessment id in response")
	}
}

func TestCheckoutAssessmentRejectsBadEmail(t *testing.T) {
	s := newTestServer(t)

	body := `{"email":"not-an-email"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// OTP flow through the full stack
// ---------------------------------------------------------------------------

func TestOTPIssueAndVerify(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/otp", strings.NewReader(`{"transactionRef":"txn_123"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var issued map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &issued); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	sessionID, _ := issued["sessionId"].(string)
	code, _ := issued["code"].(string)
	if sessionID == "" || code == "" {
		t.Fatalf("Expected sessionId and code, got %v", issued)
	}

	body := `{"sessionId":"` + sessionID + `","code":"` + code + `"}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/otp/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on correct code, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
