package mq

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// HandlerSlots bounds the handler calls a subscription runs at once. Review
// handlers hold a slot for the whole review, so InFlight also tells Stop how
// many reviews it is waiting for.
type HandlerSlots struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewHandlerSlots creates size slots, at least one.
func NewHandlerSlots(size int) *HandlerSlots {
	if size <= 0 {
		size = 1
	}
	return &HandlerSlots{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *HandlerSlots) Acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inFlight.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (s *HandlerSlots) Release() {
	s.inFlight.Add(-1)
	s.sem.Release(1)
}

// InFlight is the number of slots in use.
func (s *HandlerSlots) InFlight() int {
	return int(s.inFlight.Load())
}

func (s *HandlerSlots) Size() int { return s.size }
