package validation

import (
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"u@x.in", true},

		// Invalid cases
		{"userexample.com", false}, // No @
		{"user@", false},
		{"@example.com", false},
		{"user@example", false}, // No TLD
		{"user @example.com", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidEmail(tc.email)
		if result != tc.valid {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tc.email, result, tc.valid)
		}
	}
}

func TestIsValidIP(t *testing.T) {
	tests := []struct {
		ip    string
		valid bool
	}{
		{"192.168.1.1", true},
		{"8.8.8.8", true},
		{"::1", true},
		{"2001:db8::1", true},

		// Invalid
		{"256.1.1.1", false},
		{"192.168.1", false},
		{"not-an-ip", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidIP(tc.ip)
		if result != tc.valid {
			t.Errorf("IsValidIP(%q) = %v, want %v", tc.ip, result, tc.valid)
		}
	}
}

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://example.com", true},
		{"http://sub.example.com/path?q=1", true},

		// Invalid
		{"ftp://example.com", false},
		{"example.com", false}, // No scheme
		{"https://", false},    // No host
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidURL(tc.url)
		if result != tc.valid {
			t.Errorf("IsValidURL(%q) = %v, want %v", tc.url, result, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("email", "user@example.com"),
		ValidEmail("email", "user@example.com"),
		ValidIP("ip", "10.0.0.1"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("email", ""),
		ValidIP("ip", "not-an-ip"),
		ValidURL("url", "example.com"),
	)
	if len(errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(errors))
	}
}

func TestValidators_SkipEmpty(t *testing.T) {
	// Format validators pass on empty values; Required owns presence checks
	for name, v := range map[string]func() *ValidationError{
		"email": ValidEmail("email", ""),
		"ip":    ValidIP("ip", ""),
		"url":   ValidURL("url", ""),
	} {
		if err := v(); err != nil {
			t.Errorf("%s validator should skip empty value, got %v", name, err)
		}
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
