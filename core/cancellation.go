package session

import (
	"context"
	"sync"
	"sync/atomic"
)

type stageKind int

const (
	stageCapture stageKind = iota
	stageTranscribe
	stageConverse
	stageSpeak
	stageSummarise

	stageCount
)

// cancellationManager holds one monotonically increasing generation counter
// per pipeline stage. A stage captures the generation when it begins and
// checks it again before committing its result; a mismatch means the work
// was superseded and the result must be dropped.
//
// No stage result is ever applied without passing this check.
type cancellationManager struct {
	generations [stageCount]atomic.Int64

	mu      sync.Mutex
	cancels [stageCount]context.CancelFunc
}

// begin starts a new generation for the stage, invalidating any in-flight
// work of the same kind, and returns the generation to check against later.
func (c *cancellationManager) begin(stage stageKind) int64 {
	return c.generations[stage].Add(1)
}

// isCurrent reports whether the captured generation is still the live one.
func (c *cancellationManager) isCurrent(stage stageKind, generation int64) bool {
	return c.generations[stage].Load() == generation
}

// register attaches the cancel function of the stage's underlying operation
// so stopAll can abort it. It replaces any previously registered one.
func (c *cancellationManager) register(stage stageKind, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[stage] = cancel
}

// release detaches the stage's cancel function once the operation returned.
func (c *cancellationManager) release(stage stageKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[stage] = nil
}

// stopAll invalidates every in-flight stage and aborts the underlying
// operations that support it.
func (c *cancellationManager) stopAll() {
	for stage := range stageKind(stageCount) {
		c.generations[stage].Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for stage, cancel := range c.cancels {
		if cancel != nil {
			cancel()
			c.cancels[stage] = nil
		}
	}
}
