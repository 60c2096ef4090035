package store

import (
	"context"
	"sort"
	"sync"

	"github.com/openresponses/openresponses/pkg/api"
)

type memoryResponse struct {
	completion  *api.ModelCompletion
	inputItems  []api.InputItem
	outputItems []api.InputItem
}

// Memory is the in-memory backend.
type Memory struct {
	mu        sync.RWMutex
	responses map[string]*memoryResponse
	stores    map[string]*VectorStore
	files     map[string]map[string]*VectorStoreFile
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		responses: make(map[string]*memoryResponse),
		stores:    make(map[string]*VectorStore),
		files:     make(map[string]map[string]*VectorStoreFile),
	}
}

func (m *Memory) StoreResponse(_ context.Context, completion *api.ModelCompletion, inputItems []api.InputItem) error {
	if completion == nil || completion.ID == "" {
		return api.NewError(api.KindStorage, "cannot store a completion without an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[completion.ID] = &memoryResponse{
		completion:  completion,
		inputItems:  append([]api.InputItem(nil), inputItems...),
		outputItems: OutputItems(completion),
	}
	return nil
}

func (m *Memory) GetResponse(_ context.Context, id string) (*api.ModelCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.responses[id]
	if !ok {
		return nil, notFound(id)
	}
	return r.completion, nil
}

func (m *Memory) GetInputItems(_ context.Context, id string) ([]api.InputItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.responses[id]
	if !ok {
		return nil, notFound(id)
	}
	return append([]api.InputItem(nil), r.inputItems...), nil
}

func (m *Memory) GetOutputItems(_ context.Context, id string) ([]api.InputItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.responses[id]
	if !ok {
		return nil, notFound(id)
	}
	return append([]api.InputItem(nil), r.outputItems...), nil
}

func (m *Memory) CreateVectorStore(_ context.Context, vs *VectorStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vs.CreatedAt == 0 {
		vs.CreatedAt = now()
	}
	copied := *vs
	m.stores[vs.ID] = &copied
	return nil
}

func (m *Memory) GetVectorStore(_ context.Context, id string) (*VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs, ok := m.stores[id]
	if !ok {
		return nil, vectorStoreNotFound(id)
	}
	copied := *vs
	copied.FileCounts = m.countFiles(id)
	return &copied, nil
}

func (m *Memory) ListVectorStores(_ context.Context) ([]*VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*VectorStore, 0, len(m.stores))
	for id, vs := range m.stores {
		copied := *vs
		copied.FileCounts = m.countFiles(id)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteVectorStore(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[id]; !ok {
		return nil, vectorStoreNotFound(id)
	}
	delete(m.stores, id)

	var fileIDs []string
	for fileID := range m.files[id] {
		fileIDs = append(fileIDs, fileID)
	}
	delete(m.files, id)
	sort.Strings(fileIDs)
	return fileIDs, nil
}

func (m *Memory) UpsertVectorStoreFile(_ context.Context, file *VectorStoreFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[file.VectorStoreID]; !ok {
		return vectorStoreNotFound(file.VectorStoreID)
	}
	if file.CreatedAt == 0 {
		file.CreatedAt = now()
	}
	if m.files[file.VectorStoreID] == nil {
		m.files[file.VectorStoreID] = make(map[string]*VectorStoreFile)
	}
	copied := *file
	m.files[file.VectorStoreID][file.ID] = &copied
	return nil
}

func (m *Memory) GetVectorStoreFile(_ context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	file, ok := m.files[vectorStoreID][fileID]
	if !ok {
		return nil, fileNotFound(fileID)
	}
	copied := *file
	return &copied, nil
}

func (m *Memory) ListVectorStoreFiles(_ context.Context, vectorStoreID string) ([]*VectorStoreFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.stores[vectorStoreID]; !ok {
		return nil, vectorStoreNotFound(vectorStoreID)
	}
	out := make([]*VectorStoreFile, 0, len(m.files[vectorStoreID]))
	for _, file := range m.files[vectorStoreID] {
		copied := *file
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteVectorStoreFile(_ context.Context, vectorStoreID, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[vectorStoreID][fileID]; !ok {
		return false, nil
	}
	delete(m.files[vectorStoreID], fileID)
	return true, nil
}

func (m *Memory) Close() error { return nil }

// countFiles recomputes the per-state counts. Caller holds the lock.
func (m *Memory) countFiles(vectorStoreID string) FileCounts {
	var counts FileCounts
	for _, file := range m.files[vectorStoreID] {
		counts.Total++
		switch file.Status {
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		default:
			counts.InProgress++
		}
	}
	return counts
}

var _ Store = (*Memory)(nil)
