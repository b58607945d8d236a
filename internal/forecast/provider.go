package forecast

import (
	"context"
	"time"
)

// SnapshotFetcher retrieves the raw snapshot one source published for a date.
// Implementations return ErrSnapshotNotFound when nothing is published for
// date; any other error is treated as transient.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, date time.Time) (*RawSnapshot, error)
}

// SnapshotDecoder turns a raw snapshot into records. It returns an error
// wrapping ErrSnapshotMalformed when the payload lacks required structure.
type SnapshotDecoder interface {
	DecodeSnapshot(raw *RawSnapshot) ([]Record, error)
}

// Provider is one source's wire adapter.
type Provider interface {
	SnapshotFetcher
	SnapshotDecoder
}

// CoordinateSource resolves normalized site names to coordinates for a
// source. Coordinates do not depend on the forecast date.
type CoordinateSource interface {
	Coordinates(ctx context.Context, source Source) (map[string]Coordinate, error)
}
