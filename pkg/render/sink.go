package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
)

const DefaultMemoryJobs = 8

// ErrPageNotFound is returned by sinks for pages they do not hold.
var ErrPageNotFound = errors.New("rendered page not found")

// MemorySink keeps PNG encoded pages of the most recent jobs.
type MemorySink struct {
	maxJobs int

	mu    sync.RWMutex
	pages map[string]map[int][]byte
	order []string
}

func NewMemorySink(maxJobs int) *MemorySink {
	if maxJobs <= 0 {
		maxJobs = DefaultMemoryJobs
	}
	return &MemorySink{
		maxJobs: maxJobs,
		pages:   make(map[string]map[int][]byte),
	}
}

func (s *MemorySink) Store(ctx context.Context, jobID string, index int, img *image.RGBA) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.pages[jobID]
	if !ok {
		job = make(map[int][]byte)
		s.pages[jobID] = job
		s.order = append(s.order, jobID)
		for len(s.order) > s.maxJobs {
			delete(s.pages, s.order[0])
			s.order = s.order[1:]
		}
	}
	job[index] = buf.Bytes()
	return nil
}

// Get returns the PNG for a 0-based page index.
func (s *MemorySink) Get(jobID string, index int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.pages[jobID]
	if !ok {
		return nil, false
	}
	b, ok := job[index]
	return b, ok
}

// DeleteJob drops every page of jobID.
func (s *MemorySink) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[jobID]; !ok {
		return nil
	}
	delete(s.pages, jobID)
	for i, id := range s.order {
		if id == jobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Open returns the stored PNG. MemorySink never hands out links.
func (s *MemorySink) Open(_ context.Context, jobID string, index int) ([]byte, string, error) {
	data, ok := s.Get(jobID, index)
	if !ok {
		return nil, "", ErrPageNotFound
	}
	return data, "", nil
}
