// Package channel carries emitted snapshots from the feed engine to the
// downstream writers. Sends never block the engine: a full buffer drops the
// snapshot and bumps a counter.
package channel

import (
	"context"
	"sync"

	"volspike/logger"
	"volspike/models"
)

// Stats tracks enqueue/dropped counters.
type Stats struct {
	ArchiveSent    int64
	PublishSent    int64
	ArchiveDropped int64
	PublishDropped int64
}

// Channels exposes the archive and publish snapshot streams.
type Channels struct {
	Archive chan models.Snapshot
	Publish chan models.Snapshot

	stats Stats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewChannels allocates buffered channels for snapshot fan-out.
func NewChannels(archiveBufferSize, publishBufferSize int) *Channels {
	log := logger.GetLogger()
	ch := &Channels{
		Archive: make(chan models.Snapshot, archiveBufferSize),
		Publish: make(chan models.Snapshot, publishBufferSize),
		log:     log,
	}

	log.WithComponent("snapshot_channels").WithFields(logger.Fields{
		"archive_buffer_size": archiveBufferSize,
		"publish_buffer_size": publishBufferSize,
	}).Info("snapshot channels initialized")

	return ch
}

// Close closes both snapshot channels.
func (c *Channels) Close() {
	close(c.Archive)
	close(c.Publish)
	c.log.WithComponent("snapshot_channels").Info("snapshot channels closed")
}

// SendArchive enqueues a snapshot for the archival writer.
func (c *Channels) SendArchive(ctx context.Context, snap models.Snapshot) bool {
	select {
	case c.Archive <- snap:
		c.increment(&c.stats.ArchiveSent)
		logger.RecordChannelMessage("archive", len(snap.Rows))
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(&c.stats.ArchiveDropped)
		return false
	}
}

// SendPublish enqueues a snapshot for the broker publisher.
func (c *Channels) SendPublish(ctx context.Context, snap models.Snapshot) bool {
	select {
	case c.Publish <- snap:
		c.increment(&c.stats.PublishSent)
		logger.RecordChannelMessage("publish", len(snap.Rows))
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(&c.stats.PublishDropped)
		return false
	}
}

// GetStats returns a snapshot of the telemetry counters.
func (c *Channels) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Channels) increment(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}
