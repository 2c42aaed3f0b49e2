package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogHandler returns a JSON slog handler that ships each record to a
// Graylog GELF UDP input at addr.
func NewGraylogHandler(addr, level string) (slog.Handler, *gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("creating GELF writer for %s: %w", addr, err)
	}
	return slog.NewJSONHandler(w, HandlerOptions(level)), w, nil
}
