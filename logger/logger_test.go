package logger

import (
	"os"
	"sync/atomic"
	"testing"
)

func atomicFramesRead() int64 {
	return atomic.LoadInt64(&framesRead)
}

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestCountersAccumulate(t *testing.T) {
	before := atomicFramesRead()
	IncrementFrameRead(128)
	IncrementFrameRead(64)
	if got := atomicFramesRead(); got != before+2 {
		t.Fatalf("frames_read = %d, want %d", got, before+2)
	}

	v, ok := channels.Load("stream_ws")
	if !ok {
		t.Fatal("stream_ws channel stat missing")
	}
	if v.(*channelStat).bytes < 192 {
		t.Fatalf("stream_ws bytes = %d, want at least 192", v.(*channelStat).bytes)
	}
}
