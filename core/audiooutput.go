package session

import (
	"context"

	"github.com/quietroom/reflect-core/core/audio"
	"github.com/quietroom/reflect-core/core/errdefs"
)

// PlaybackClient is the speaker contract spoken replies are played through.
type PlaybackClient interface {
	EncodingInfo() audio.EncodingInfo
	// SendAudio queues raw audio for playback.
	SendAudio(audio []byte) error
	// ClearBuffer drops any queued audio that has not been played yet.
	ClearBuffer() error
	// AwaitMark returns a channel closed once everything queued so far has
	// been played out.
	AwaitMark() <-chan struct{}
	Close() error
}

// audioPlayback is the playback facade; without a configured client every
// operation is a silent no-op so the session also works text-only.
type audioPlayback struct {
	client PlaybackClient
}

func newAudioPlayback(client PlaybackClient) *audioPlayback {
	return &audioPlayback{client: client}
}

func (a *audioPlayback) IsConfigured() bool { return a != nil && a.client != nil }

// Play queues the audio and blocks until it has been played out or ctx is
// cancelled. Cancellation stops playback and drops the remainder.
func (a *audioPlayback) Play(ctx context.Context, audioData []byte) error {
	if !a.IsConfigured() || len(audioData) == 0 {
		return nil
	}
	if err := a.Send(audioData); err != nil {
		return err
	}
	return a.Drain(ctx)
}

// Send queues audio for playback without waiting for it to play out.
func (a *audioPlayback) Send(audioData []byte) error {
	if !a.IsConfigured() || len(audioData) == 0 {
		return nil
	}
	if err := a.client.SendAudio(audioData); err != nil {
		return &errdefs.DeviceError{Op: "send audio", Err: err}
	}
	return nil
}

// Drain blocks until everything queued so far has been played out or ctx is
// cancelled. Cancellation stops playback and drops the remainder.
func (a *audioPlayback) Drain(ctx context.Context) error {
	if !a.IsConfigured() {
		return nil
	}
	select {
	case <-ctx.Done():
		_ = a.client.ClearBuffer()
		return ctx.Err()
	case <-a.client.AwaitMark():
		return nil
	}
}

// Stop drops any queued audio immediately.
func (a *audioPlayback) Stop() error {
	if !a.IsConfigured() {
		return nil
	}
	if err := a.client.ClearBuffer(); err != nil {
		return &errdefs.DeviceError{Op: "clear buffer", Err: err}
	}
	return nil
}

func (a *audioPlayback) Close() error {
	if !a.IsConfigured() {
		return nil
	}
	_ = a.Stop()
	return a.client.Close()
}
