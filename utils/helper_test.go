package utils

import (
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"russian trunk prefix", "8 (495) 123-45-67", "+74951234567"},
		{"already e164", "+74951234567", "+74951234567"},
		{"international", "+1 650-253-0000", "+16502530000"},
		{"garbage stays as-is", "call me maybe", "call me maybe"},
		{"trimmed", "  8 (495) 123-45-67  ", "+74951234567"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "user.name+tag@example.org"}
	invalid := []string{"", "not-an-email", "a@b", "@example.org"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false, want true", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 125.50 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if d.String() != "125.5" {
		t.Errorf("got %s, want 125.5", d)
	}

	if _, err := ParseDecimal(""); err == nil {
		t.Error("expected error for empty string")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		URL      string `validate:"omitempty,url"`
		Interval int    `validate:"omitempty,min=5,max=1440"`
	}

	if err := ValidateStruct(req{}); err != nil {
		t.Errorf("zero value should validate: %v", err)
	}
	if err := ValidateStruct(req{URL: "https://example.com", Interval: 60}); err != nil {
		t.Errorf("valid value should validate: %v", err)
	}
	err := ValidateStruct(req{URL: "not a url", Interval: 2})
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := ProcessValidationErrors(err)
	if len(fields) != 2 {
		t.Errorf("got %d field errors, want 2: %v", len(fields), fields)
	}
}
