package provider

import (
	"context"
	"sync"
)

// Mock is an in-memory provider used by tests and the dry-run CLI path.
type Mock struct {
	ProviderName     string
	ProviderPriority int
	Candidates       []Candidate
	Payload          []byte
	SearchErr        error
	DownloadErr      error

	mu            sync.Mutex
	searchCalls   int
	downloadCalls int
}

func (m *Mock) Name() string  { return m.ProviderName }
func (m *Mock) Priority() int { return m.ProviderPriority }

func (m *Mock) Search(ctx context.Context, q VideoQuery) ([]Candidate, error) {
	m.mu.Lock()
	m.searchCalls++
	m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	out := make([]Candidate, len(m.Candidates))
	copy(out, m.Candidates)
	for i := range out {
		out[i].ProviderName = m.ProviderName
	}
	return out, nil
}

func (m *Mock) Download(ctx context.Context, c Candidate) ([]byte, error) {
	m.mu.Lock()
	m.downloadCalls++
	m.mu.Unlock()
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	return m.Payload, nil
}

// SearchCalls reports how many searches ran.
func (m *Mock) SearchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls
}

// DownloadCalls reports how many downloads ran.
func (m *Mock) DownloadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloadCalls
}
