package progress

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Slot identifies which of a download's streams a State tracks.
type Slot int

const (
	VideoSlot Slot = iota
	AudioSlot
	slotCount
)

func (s Slot) String() string {
	switch s {
	case VideoSlot:
		return "video"
	case AudioSlot:
		return "audio"
	}

	return "unknown"
}

// Sink receives the two progress signals a stream fetch produces: an
// early signal carrying the total expected length, and periodic signals
// carrying the cumulative number of bytes transferred.
type Sink interface {
	Info(expectedBytes int64)
	Progress(transferredBytes int64)
}

// State holds the byte counters for a single stream. It is safe for
// concurrent use; a fetch writes it while notifiers read it.
type State struct {
	expected    atomic.Int64
	transferred atomic.Int64
}

// Info records the expected size of the stream. A non-positive size means the
// size is unknown, and leaves any earlier estimate in place.
func (s *State) Info(expectedBytes int64) {
	if expectedBytes <= 0 {
		return
	}
	s.expected.Store(expectedBytes)
}

// Progress records the cumulative byte count. The counter never moves
// backwards so that readers observe a non-decreasing value.
func (s *State) Progress(transferredBytes int64) {
	for {
		current := s.transferred.Load()
		if transferredBytes <= current {
			return
		}
		if s.transferred.CompareAndSwap(current, transferredBytes) {
			return
		}
	}
}

func (s *State) Snapshot() (expectedBytes int64, transferredBytes int64) {
	return s.expected.Load(), s.transferred.Load()
}

// Handle is the progress record for one download request. Each stream is
// tracked in its own slot so that the combined percentage stays meaningful
// when both streams are fetched concurrently.
type Handle struct {
	id         uuid.UUID
	slots      [slotCount]State
	stage      atomic.Value
	startedAt  time.Time
	finishedAt atomic.Int64
	highWater  atomic.Uint64
}

func newHandle(id uuid.UUID) *Handle {
	h := &Handle{id: id, startedAt: time.Now()}
	h.stage.Store("")

	return h
}

func (h *Handle) ID() uuid.UUID { return h.id }
func (h *Handle) StartedAt() time.Time { return h.startedAt }
func (h *Handle) Slot(slot Slot) *State { return &h.slots[slot] }
func (h *Handle) SetStage(stage string) { h.stage.Store(stage) }
func (h *Handle) Stage() string { return h.stage.Load().(string) }
func (h *Handle) Finished() bool { return h.finishedAt.Load() != 0 }
func (h *Handle) Finish() { h.finishedAt.CompareAndSwap(0, time.Now().UnixNano()) }

// FinishedAt returns the time Finish was first called, or the zero time.
func (h *Handle) FinishedAt() time.Time {
	if ns := h.finishedAt.Load(); ns != 0 {
		return time.Unix(0, ns)
	}

	return time.Time{}
}

// Totals sums the counters across every slot.
func (h *Handle) Totals() (expectedBytes int64, transferredBytes int64) {
	for i := range h.slots {
		e, t := h.slots[i].Snapshot()
		expectedBytes += e
		transferredBytes += t
	}

	return
}

// Percentage returns transferred/expected*100 for the whole download. While
// nothing is known about the expected size this is 0; it is never NaN or
// infinite, and is clamped to [0, 100].
//
// The value never decreases across calls: a slot whose size is learned late
// (for example the audio stream after the video has finished) cannot pull the
// reported percentage backwards.
func (h *Handle) Percentage() float64 {
	pct := Percentage(h.Totals())
	for {
		previous := h.highWater.Load()
		if pct <= math.Float64frombits(previous) {
			return math.Float64frombits(previous)
		}
		if h.highWater.CompareAndSwap(previous, math.Float64bits(pct)) {
			return pct
		}
	}
}

func Percentage(expectedBytes int64, transferredBytes int64) float64 {
	if expectedBytes <= 0 || transferredBytes <= 0 {
		return 0
	}

	pct := float64(transferredBytes) / float64(expectedBytes) * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}

	return math.Min(pct, 100)
}
