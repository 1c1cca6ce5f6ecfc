package session

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"main", false},
		{"work123", false},
		{"night-shift", false},
		{"night_shift", false},
		{"a", false},
		{strings.Repeat("p", 64), false},
		{"", true},
		{"Main", true},
		{"two words", true},
		{"dotted.name", true},
		{strings.Repeat("p", 64) + "x", true},
		{"at@sign", true},
		{"../escape", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestActive(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	if got, err := Active(""); err != nil || got != DefaultProfileName {
		t.Errorf("Active(\"\") = %q, %v", got, err)
	}
	if _, err := Active("Bad Name"); err == nil {
		t.Error("Active accepted an invalid name")
	}
}
