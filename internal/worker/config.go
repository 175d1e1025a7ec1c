// Package worker runs the TEMPO ingestion pipeline on a schedule and on
// demand.
package worker

import (
	"time"
)

// IngestConfig holds configuration for the ingestion job.
type IngestConfig struct {
	// ChunkSize bounds how many points are buffered per extraction chunk.
	// Default: 5000
	ChunkSize int

	// Timeout bounds a single run, from download to publish.
	// Default: 10 minutes
	Timeout time.Duration
}

// DefaultIngestConfig returns the default ingestion configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize: 5000,
		Timeout:   10 * time.Minute,
	}
}

func (c IngestConfig) withDefaults() IngestConfig {
	d := DefaultIngestConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
