package recorder

import (
	"context"

	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/telemetry"
)

// Console logs one line per frame with the transmitter timestamp and the
// checksum result.
type Console struct {
	log logger.Logger
}

// NewConsole returns a console recorder logging through log.
func NewConsole(log logger.Logger) *Console {
	return &Console{log: log.WithField("sink", "console")}
}

// Consume logs frame. It never fails.
func (c *Console) Consume(_ context.Context, frame telemetry.Frame) error {
	entry := c.log.WithFields(map[string]interface{}{
		"schema":  frame.Schema.Name,
		"uptime":  frame.Record.Uptime().String(),
		"valid":   frame.Valid,
		"skipped": frame.Skipped,
	})
	if frame.Valid {
		entry.Info("Frame received")
	} else {
		entry.Warn("Frame received with bad checksum")
	}
	return nil
}
