// README: Structured JSON logger shared by every binary.
package logging

import (
	"log/slog"
	"os"
)

// New returns a JSON logger tagged with the service name and installs it as the default.
func New(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}).WithAttrs([]slog.Attr{
		slog.String("service", service),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Or returns l, or the process default when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
