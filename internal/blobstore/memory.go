package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store for tests.
type Memory struct {
	mu      sync.Mutex
	seq     int
	blobs   map[string][]byte
	Deleted []string
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Upload(_ context.Context, data []byte, destination string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf("mem-%d-%s", m.seq, destination)
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *Memory) Download(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Copy(ctx context.Context, ref, destination string) (string, error) {
	b, err := m.Download(ctx, ref)
	if err != nil {
		return "", err
	}
	return m.Upload(ctx, b, destination)
}

func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	m.Deleted = append(m.Deleted, ref)
	return nil
}
