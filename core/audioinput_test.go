package session

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/quietroom/reflect-core/core/errdefs"
)

func TestCaptureAssemblesChunksInOrder(t *testing.T) {
	client := &captureClientStub{}
	capture := newAudioCapture(client)

	if err := capture.Begin(context.Background()); err != nil {
		t.Fatalf("expected capture to begin, got %v", err)
	}
	if !capture.IsCapturing() {
		t.Fatalf("expected the capture to be live")
	}

	client.feed([]byte{0x01, 0x02})
	client.feed([]byte{0x03})
	client.feed([]byte{0x04, 0x05})

	blob, err := capture.End()
	if err != nil {
		t.Fatalf("expected capture to end, got %v", err)
	}
	if !bytes.Equal(blob, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Fatalf("expected the chunks assembled in arrival order, got %v", blob)
	}
	if capture.IsCapturing() {
		t.Fatalf("expected the capture released")
	}
}

func TestCaptureBeginWithoutAClient(t *testing.T) {
	capture := newAudioCapture(nil)

	err := capture.Begin(context.Background())
	deviceErr := &errdefs.DeviceError{}
	if !errors.As(err, &deviceErr) {
		t.Fatalf("expected a device error without a client, got %v", err)
	}
}

func TestCaptureEndWhileIdleIsANoOp(t *testing.T) {
	capture := newAudioCapture(&captureClientStub{})

	blob, err := capture.End()
	if err != nil {
		t.Fatalf("expected an idle end to be a no-op, got %v", err)
	}
	if blob != nil {
		t.Fatalf("expected no blob from an idle end, got %v", blob)
	}
}

func TestCaptureBeginWhileCapturingIsANoOp(t *testing.T) {
	client := &captureClientStub{}
	capture := newAudioCapture(client)

	if err := capture.Begin(context.Background()); err != nil {
		t.Fatalf("expected capture to begin, got %v", err)
	}
	client.feed([]byte{0x01})

	if err := capture.Begin(context.Background()); err != nil {
		t.Fatalf("expected a repeated begin to be a no-op, got %v", err)
	}

	blob, err := capture.End()
	if err != nil {
		t.Fatalf("expected capture to end, got %v", err)
	}
	if !bytes.Equal(blob, []byte{0x01}) {
		t.Fatalf("expected the buffered chunk preserved across the repeated begin, got %v", blob)
	}
}

func TestCaptureEndSurfacesStopFailures(t *testing.T) {
	client := &captureClientStub{stopErr: errors.New("device wedged")}
	capture := newAudioCapture(client)

	if err := capture.Begin(context.Background()); err != nil {
		t.Fatalf("expected capture to begin, got %v", err)
	}

	_, err := capture.End()
	deviceErr := &errdefs.DeviceError{}
	if !errors.As(err, &deviceErr) {
		t.Fatalf("expected a device error from a stop failure, got %v", err)
	}
}

func TestAbortDiscardsTheBuffer(t *testing.T) {
	client := &captureClientStub{}
	capture := newAudioCapture(client)

	if err := capture.Begin(context.Background()); err != nil {
		t.Fatalf("expected capture to begin, got %v", err)
	}
	client.feed([]byte{0x01, 0x02})

	capture.Abort()

	if capture.IsCapturing() {
		t.Fatalf("expected the capture released after abort")
	}
	if client.stops != 1 {
		t.Fatalf("expected the device stopped once, got %d stops", client.stops)
	}

	blob, err := capture.End()
	if err != nil || blob != nil {
		t.Fatalf("expected nothing left after abort, got %v, %v", blob, err)
	}
}
