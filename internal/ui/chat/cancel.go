// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL MANAGER
// =============================================================================

// cancelManager guards the cancellation handle for side-channel work
// (ephemeral questions) that runs outside the store's turn scope. Must
// be used as a pointer (*cancelManager) in Model structs so Update's
// value receiver still mutates the shared handle.
type cancelManager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// Install cancels any previous scope and derives a fresh one from parent.
func (c *cancelManager) Install(parent context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return ctx
}

// Cancel aborts the active scope, if any.
func (c *cancelManager) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Clear releases the scope once the work finished on its own.
func (c *cancelManager) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
