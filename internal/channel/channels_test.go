package channel

import (
	"context"
	"testing"

	"volspike/models"
)

func TestSendAndStats(t *testing.T) {
	ch := NewChannels(1, 1)
	ctx := context.Background()
	snap := models.Snapshot{EmittedAt: 1}

	if !ch.SendArchive(ctx, snap) {
		t.Fatal("SendArchive into empty buffer failed")
	}
	if !ch.SendPublish(ctx, snap) {
		t.Fatal("SendPublish into empty buffer failed")
	}

	// Buffers are full now; the next sends must drop, not block.
	if ch.SendArchive(ctx, snap) {
		t.Error("SendArchive into full buffer should drop")
	}
	if ch.SendPublish(ctx, snap) {
		t.Error("SendPublish into full buffer should drop")
	}

	stats := ch.GetStats()
	if stats.ArchiveSent != 1 || stats.PublishSent != 1 || stats.ArchiveDropped != 1 || stats.PublishDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendCancelledContext(t *testing.T) {
	ch := NewChannels(1, 1)
	ch.SendArchive(context.Background(), models.Snapshot{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ch.SendArchive(ctx, models.Snapshot{}) {
		t.Error("SendArchive with cancelled context should fail")
	}
}

func TestClose(t *testing.T) {
	ch := NewChannels(1, 1)
	ch.Close()
	if _, ok := <-ch.Archive; ok {
		t.Error("Archive channel still open after Close")
	}
}
