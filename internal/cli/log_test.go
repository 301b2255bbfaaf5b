package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := newLogger(&strings.Builder{}, log.DebugLevel)
	ctx := withLogger(context.Background(), logger)

	if got := loggerFromContext(ctx); got != logger {
		t.Error("logger not recovered from context")
	}
}

func TestLoggerFromContextDefaults(t *testing.T) {
	if got := loggerFromContext(context.Background()); got != log.Default() {
		t.Error("expected the default logger for a bare context")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var out strings.Builder
	logger := newLogger(&out, log.InfoLevel)

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug message logged at info level")
	}
	if !strings.Contains(out.String(), "shown") {
		t.Error("info message missing")
	}
}
