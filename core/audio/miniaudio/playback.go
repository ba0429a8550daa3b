package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/quietroom/reflect-core/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	leftoverAudio []byte
	marks         []mark
	playedBytes   int

	mu sync.Mutex
}

// mark is a position in the playback stream whose channel is closed once
// every byte queued before it has been handed to the device.
type mark struct {
	at      int
	reached chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame

			c.mu.Lock()
			defer c.mu.Unlock()

			copied := copy(pOutput, c.leftoverAudio)
			c.leftoverAudio = c.leftoverAudio[copied:]
			c.playedBytes += copied
			for copied < n {
				pOutput[copied] = 0
				copied++
			}
			c.releaseMarksLocked()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.leftoverAudio = append(c.leftoverAudio, audio...)
	return nil
}

// AwaitMark returns a channel that is closed once everything queued so far
// has been played out.
func (c *playbackClient) AwaitMark() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := mark{
		at:      c.playedBytes + len(c.leftoverAudio),
		reached: make(chan struct{}),
	}
	if c.playedBytes >= m.at {
		close(m.reached)
		return m.reached
	}
	c.marks = append(c.marks, m)
	return m.reached
}

func (c *playbackClient) ClearBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playedBytes += len(c.leftoverAudio)
	c.leftoverAudio = nil
	c.releaseMarksLocked()
	return nil
}

func (c *playbackClient) releaseMarksLocked() {
	kept := c.marks[:0]
	for _, m := range c.marks {
		if c.playedBytes >= m.at {
			close(m.reached)
			continue
		}
		kept = append(kept, m)
	}
	c.marks = kept
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.leftoverAudio = nil
	c.playedBytes = 0
	for _, m := range c.marks {
		close(m.reached)
	}
	c.marks = nil
	return nil
}
