package webfeed

import "sync"

// frameBuffer keeps the most recent raw frames of a feed so late joiners can
// replay what they missed between the snapshot read and the live stream.
type frameBuffer struct {
	mu     sync.Mutex
	max    int
	frames [][]byte
}

func newFrameBuffer(limit int) *frameBuffer {
	if limit <= 0 {
		limit = 1000
	}
	return &frameBuffer{max: limit, frames: make([][]byte, 0, limit)}
}

func (b *frameBuffer) Add(frame []byte) {
	if b == nil || len(frame) == 0 {
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(b.frames, cp)
	if len(b.frames) > b.max {
		drop := len(b.frames) - b.max
		b.frames = append([][]byte(nil), b.frames[drop:]...)
	}
}

func (b *frameBuffer) Snapshot() [][]byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, len(b.frames))
	for _, f := range b.frames {
		if len(f) == 0 {
			continue
		}
		cp := make([]byte, len(f))
		copy(cp, f)
		out = append(out, cp)
	}
	return out
}
