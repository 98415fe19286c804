package logger

import (
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := New(config.LogConfig{Level: "debug", Format: format, OutputPath: "stdout", Service: "medbook-test"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", format, err)
		}
		if !log.Core().Enabled(-1) {
			t.Errorf("%s: expected debug level enabled", format)
		}
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Format: "json", OutputPath: "stdout"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
