package errors

import (
	"math"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "lookup", false},
		{"valid nested", "lut/tile/0_1_2", false},
		{"valid with dash", "seg/chunk/0003", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 600), true},
		{"absolute", "/etc/passwd", true},
		{"path traversal ..", "lut/../graph", true},
		{"empty segment //", "lut//tile", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidKey) {
				t.Errorf("ValidateKey(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidKey)
			}
		})
	}
}

func TestValidateIntervals(t *testing.T) {
	tests := []struct {
		name    string
		input   []float64
		wantErr bool
	}{
		{"nil", nil, false},
		{"single", []float64{0}, false},
		{"ascending", []float64{0, 1000, 5000, 1e6}, false},

		{"equal", []float64{0, 10, 10}, true},
		{"descending", []float64{10, 5}, true},
		{"nan", []float64{0, math.NaN()}, true},
		{"inf", []float64{math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntervals(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIntervals(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePositive(t *testing.T) {
	if err := ValidatePositive("chunks", 1); err != nil {
		t.Errorf("ValidatePositive(1) = %v", err)
	}
	err := ValidatePositive("chunks", 0)
	if err == nil {
		t.Fatal("ValidatePositive(0) should fail")
	}
	if !strings.Contains(err.Error(), "chunks") {
		t.Errorf("error should name the parameter: %v", err)
	}
}
