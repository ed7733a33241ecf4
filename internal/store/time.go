// ABOUTME: Shared helpers for ID generation and timestamp encoding
// ABOUTME: Timestamps are stored as RFC3339Nano so ordering survives round-trips

package store

import (
	"time"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.New().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
