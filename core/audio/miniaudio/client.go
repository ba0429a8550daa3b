// Package miniaudio provides microphone capture and speaker playback on top
// of the malgo bindings. A single Client owns the audio context and exposes
// both directions at 16 kHz mono PCM16.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/quietroom/reflect-core/core/audio"
)

type Client struct {
	audioContext *malgo.AllocatedContext

	capture  captureClient
	playback playbackClient

	closeOnce sync.Once
}

func NewClient() (*Client, error) {
	c := &Client{}

	var err error
	c.audioContext, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	if err := c.capture.Init(c.audioContext); err != nil {
		c.teardownContext()
		return nil, err
	}
	if err := c.playback.Init(c.audioContext); err != nil {
		_ = c.capture.Uninit()
		c.teardownContext()
		return nil, err
	}

	return c, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.capture.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.capture.Stop()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playback.SendAudio(audio)
}

func (c *Client) ClearBuffer() error {
	return c.playback.ClearBuffer()
}

func (c *Client) AwaitMark() <-chan struct{} {
	return c.playback.AwaitMark()
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.capture.Uninit()
		_ = c.playback.Uninit()
		c.teardownContext()
	})
	return nil
}

func (c *Client) teardownContext() {
	if c.audioContext == nil {
		return
	}
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
	c.audioContext = nil
}
