// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// Streaming buffer defaults. A fast model can emit dozens of deltas per
// second; redrawing the viewport for each one burns CPU and makes the
// terminal flicker. Deltas land in the store immediately regardless;
// the buffer only decides when the viewport re-reads it.
const (
	// DefaultBatchSize is how many pending notifications force a redraw.
	DefaultBatchSize = 15

	// DefaultMaxFPS caps redraw frequency.
	DefaultMaxFPS = 30

	// DefaultFlushInterval is the redraw interval derived from DefaultMaxFPS.
	DefaultFlushInterval = time.Second / DefaultMaxFPS
)

// StreamingBuffer coalesces transcript-change notifications into batched
// redraws. Safe for concurrent use; the turn goroutine writes while the
// UI goroutine flushes.
type StreamingBuffer struct {
	mu            sync.Mutex
	pending       int
	lastFlush     time.Time
	batchSize     int
	flushInterval time.Duration
}

// NewStreamingBuffer creates a buffer with default batching parameters.
func NewStreamingBuffer() *StreamingBuffer {
	return &StreamingBuffer{
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		lastFlush:     time.Now(),
	}
}

// Write records one pending notification.
func (b *StreamingBuffer) Write() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending++
}

// ShouldFlush reports whether enough notifications or enough time have
// accumulated to justify a redraw.
func (b *StreamingBuffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == 0 {
		return false
	}
	return b.pending >= b.batchSize || time.Since(b.lastFlush) >= b.flushInterval
}

// Flush resets the pending count and returns how many notifications it
// covered. Zero means nothing was pending.
func (b *StreamingBuffer) Flush() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.pending
	b.pending = 0
	b.lastFlush = time.Now()
	return n
}

// Pending returns the number of unflushed notifications.
func (b *StreamingBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Reset clears pending state, e.g. after the transcript was replaced
// wholesale by a load or clear.
func (b *StreamingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = 0
	b.lastFlush = time.Now()
}

// SetBatchSize overrides the notification threshold. Values below one
// are ignored.
func (b *StreamingBuffer) SetBatchSize(n int) {
	if n < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchSize = n
}

// SetMaxFPS overrides the redraw frequency cap. Values below one are
// ignored.
func (b *StreamingBuffer) SetMaxFPS(fps int) {
	if fps < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushInterval = time.Second / time.Duration(fps)
}

// streamTickCmd schedules the next batcher check while a turn streams.
func streamTickCmd() tea.Cmd {
	return tea.Tick(DefaultFlushInterval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
