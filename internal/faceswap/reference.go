package faceswap

import (
	"sync"

	"github.com/dudu/swapface/internal/detector"
)

// ReferenceStore holds the face tracked across the frames of a video run.
// It is written once before frames are dispatched and only read afterwards.
type ReferenceStore struct {
	mu   sync.RWMutex
	face *detector.Face
}

// NewReferenceStore creates an unset store
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{}
}

// Set replaces the reference face
func (s *ReferenceStore) Set(face detector.Face) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.face = &face
}

// Get returns the reference face and whether one is set
func (s *ReferenceStore) Get() (detector.Face, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.face == nil {
		return detector.Face{}, false
	}
	return *s.face, true
}

// Clear resets the store to unset
func (s *ReferenceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.face = nil
}
