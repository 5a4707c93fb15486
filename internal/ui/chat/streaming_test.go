// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"
)

func TestStreamingBuffer_BatchThreshold(t *testing.T) {
	b := NewStreamingBuffer()
	b.SetBatchSize(3)
	b.SetMaxFPS(1) // long interval so only the count can trigger

	b.Write()
	b.Write()
	if b.ShouldFlush() {
		t.Error("flushed below batch threshold")
	}
	b.Write()
	if !b.ShouldFlush() {
		t.Error("batch threshold did not trigger a flush")
	}

	if n := b.Flush(); n != 3 {
		t.Errorf("Flush = %d, want 3", n)
	}
	if b.Pending() != 0 {
		t.Error("pending not cleared by flush")
	}
}

func TestStreamingBuffer_TimeThreshold(t *testing.T) {
	b := NewStreamingBuffer()
	b.SetBatchSize(1000)
	b.SetMaxFPS(100) // 10ms interval

	b.Write()
	if b.ShouldFlush() {
		t.Error("flushed immediately")
	}
	time.Sleep(15 * time.Millisecond)
	if !b.ShouldFlush() {
		t.Error("interval did not trigger a flush")
	}
}

func TestStreamingBuffer_EmptyNeverFlushes(t *testing.T) {
	b := NewStreamingBuffer()
	time.Sleep(DefaultFlushInterval + 5*time.Millisecond)
	if b.ShouldFlush() {
		t.Error("empty buffer reported a flush")
	}
	if n := b.Flush(); n != 0 {
		t.Errorf("Flush = %d, want 0", n)
	}
}

func TestStreamingBuffer_Reset(t *testing.T) {
	b := NewStreamingBuffer()
	b.Write()
	b.Write()
	b.Reset()
	if b.Pending() != 0 {
		t.Error("reset did not clear pending")
	}
}

func TestStreamingBuffer_ConcurrentWrites(t *testing.T) {
	b := NewStreamingBuffer()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Write()
			}
		}()
	}
	wg.Wait()

	if got := b.Pending(); got != 800 {
		t.Errorf("pending = %d, want 800", got)
	}
}
