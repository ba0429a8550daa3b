package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/quietroom/reflect-core/core/audio"
	"github.com/quietroom/reflect-core/core/errdefs"
)

// CaptureClient is the microphone contract the session records through.
type CaptureClient interface {
	// StartCapture starts the device and delivers buffered chunks to onAudio
	// in arrival order.
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
	Close() error
}

// audioCapture is the capture facade: it normalizes optional client wiring
// and assembles buffered chunks into a single blob per recording.
type audioCapture struct {
	client CaptureClient

	capturing atomic.Bool

	mu     sync.Mutex
	buffer []byte
}

func newAudioCapture(client CaptureClient) *audioCapture {
	return &audioCapture{client: client}
}

func (a *audioCapture) IsConfigured() bool { return a != nil && a.client != nil }
func (a *audioCapture) IsCapturing() bool  { return a != nil && a.capturing.Load() }

func (a *audioCapture) EncodingInfo() audio.EncodingInfo {
	if !a.IsConfigured() {
		return audio.GetDefaultEncodingInfo()
	}
	return a.client.EncodingInfo()
}

// Begin acquires the device and starts buffering. Starting while already
// capturing is a no-op.
func (a *audioCapture) Begin(ctx context.Context) error {
	if !a.IsConfigured() {
		return &errdefs.DeviceError{Op: "no capture client configured"}
	}

	if !a.capturing.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	a.buffer = nil
	a.mu.Unlock()

	if err := a.client.StartCapture(ctx, func(chunk []byte) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.buffer = append(a.buffer, chunk...)
	}); err != nil {
		a.capturing.Store(false)
		return &errdefs.DeviceError{Op: "start capture", Err: err}
	}

	return nil
}

// End stops buffering, releases the device and yields the assembled blob.
// Ending while not capturing is a no-op that yields nil. The blob may be
// empty (silence); downstream treats that as a content problem, not a
// device one.
func (a *audioCapture) End() ([]byte, error) {
	if !a.IsConfigured() || !a.capturing.CompareAndSwap(true, false) {
		return nil, nil
	}

	stopErr := a.client.StopCapture()

	a.mu.Lock()
	blob := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if stopErr != nil {
		return nil, &errdefs.DeviceError{Op: "stop capture", Err: stopErr}
	}
	return blob, nil
}

// Abort stops any in-progress capture and discards whatever was buffered.
func (a *audioCapture) Abort() {
	if !a.IsConfigured() || !a.capturing.CompareAndSwap(true, false) {
		return
	}

	_ = a.client.StopCapture()

	a.mu.Lock()
	a.buffer = nil
	a.mu.Unlock()
}

func (a *audioCapture) Close() error {
	if !a.IsConfigured() {
		return nil
	}
	a.Abort()
	return a.client.Close()
}
