// Package mocks provides in-memory implementations of the core interfaces
// for tests that must not depend on Postgres, S3 or the embedding API.
package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/models"
)

var _ core.DbClient = (*MemoryDbClient)(nil)

// MemoryDbClient keeps documents, page images and chunks in maps and
// mirrors the transactional semantics of the real client: SaveIngestion and
// DeleteDocumentArtifacts apply all-or-nothing.
type MemoryDbClient struct {
	mu        sync.Mutex
	Documents map[string]*models.Document
	Pages     map[string][]models.PageImage
	Chunks    map[string][]models.DocumentChunk
	locks     map[string]bool

	SaveErr error // injected SaveIngestion failure
}

func NewMemoryDbClient() *MemoryDbClient {
	return &MemoryDbClient{
		Documents: make(map[string]*models.Document),
		Pages:     make(map[string][]models.PageImage),
		Chunks:    make(map[string][]models.DocumentChunk),
		locks:     make(map[string]bool),
	}
}

func (m *MemoryDbClient) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.Documents[doc.ID] = &cp
	return nil
}

func (m *MemoryDbClient) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.Documents[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryDbClient) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Document, 0, len(m.Documents))
	for _, d := range m.Documents {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDbClient) UpdateDocumentStatus(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.Documents[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryDbClient) ArtifactCounts(_ context.Context, documentID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Pages[documentID]), len(m.Chunks[documentID]), nil
}

func (m *MemoryDbClient) DeleteDocumentArtifacts(_ context.Context, documentID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := len(m.Pages[documentID])
	chunks := len(m.Chunks[documentID])
	delete(m.Pages, documentID)
	delete(m.Chunks, documentID)
	return pages, chunks, nil
}

func (m *MemoryDbClient) SaveIngestion(_ context.Context, documentID string, pageCount int, pages []models.PageImage, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	doc, ok := m.Documents[documentID]
	if !ok {
		return fmt.Errorf("document not found: %s", documentID)
	}
	m.Pages[documentID] = append([]models.PageImage(nil), pages...)
	m.Chunks[documentID] = append([]models.DocumentChunk(nil), chunks...)
	doc.PageCount = pageCount
	doc.Status = "ready"
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryDbClient) ListPageImages(_ context.Context, documentID string) ([]models.PageImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.PageImage(nil), m.Pages[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (m *MemoryDbClient) GetChunk(_ context.Context, documentID string, chunkIndex int) (*models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Chunks[documentID] {
		if m.Chunks[documentID][i].ChunkIndex == chunkIndex {
			cp := m.Chunks[documentID][i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryDbClient) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.DocumentChunk(nil), m.Chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// SearchDocumentChunks ranks chunks by cosine distance like the pgvector
// query does: null embeddings excluded, ties broken by chunk index.
func (m *MemoryDbClient) SearchDocumentChunks(_ context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type scored struct {
		chunk models.DocumentChunk
		dist  float64
	}
	var candidates []scored
	for _, ch := range m.Chunks[documentID] {
		if ch.Embedding == nil {
			continue
		}
		candidates = append(candidates, scored{chunk: ch, dist: CosineDistance(queryVec, ch.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].chunk.ChunkIndex < candidates[j].chunk.ChunkIndex
	})
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]models.DocumentChunk, 0, limit)
	for _, c := range candidates[:limit] {
		out = append(out, c.chunk)
	}
	return out, nil
}

func (m *MemoryDbClient) TryAcquireIngestLock(_ context.Context, documentID string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[documentID] {
		return nil, false, nil
	}
	m.locks[documentID] = true
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, documentID)
	}
	return release, true, nil
}

// HoldLock simulates a concurrent run holding the document's lock.
func (m *MemoryDbClient) HoldLock(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[documentID] = true
}

func (m *MemoryDbClient) Close() error { return nil }

// CosineDistance is 1 - cosine similarity; lower means closer.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

var _ core.ObjectClient = (*MemoryObjectClient)(nil)

// MemoryObjectClient is an in-memory blob store.
type MemoryObjectClient struct {
	mu      sync.Mutex
	Objects map[string][]byte

	UploadErr   error // injected failure for every Upload
	DownloadErr error // injected failure for every Download
	UploadCount int
}

func NewMemoryObjectClient() *MemoryObjectClient {
	return &MemoryObjectClient{Objects: make(map[string][]byte)}
}

func (m *MemoryObjectClient) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.Objects[key] = append([]byte(nil), data...)
	m.UploadCount++
	return key, nil
}

func (m *MemoryObjectClient) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	data, ok := m.Objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrBlobNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryObjectClient) SignedURL(_ context.Context, key string, _ time.Duration, forDownload bool) (string, error) {
	mode := "upload"
	if forDownload {
		mode = "download"
	}
	return fmt.Sprintf("https://signed.example.com/%s?mode=%s", key, mode), nil
}

func (m *MemoryObjectClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	return nil
}

var _ core.EmbeddingProvider = (*StubEmbedder)(nil)

// StubEmbedder produces deterministic vectors without any network call.
// Vectors can be pinned per text; FailTexts makes specific texts fail, both
// in batch calls (failing the whole batch) and per-text calls.
type StubEmbedder struct {
	Dim       int
	Vectors   map[string][]float32
	FailTexts map[string]bool

	BatchCalls  int
	SingleCalls int
}

func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{
		Dim:       dim,
		Vectors:   make(map[string][]float32),
		FailTexts: make(map[string]bool),
	}
}

func (s *StubEmbedder) vector(text string) []float32 {
	if v, ok := s.Vectors[text]; ok {
		return v
	}
	// Cheap deterministic fallback derived from the text length.
	v := make([]float32, s.Dim)
	for i := range v {
		v[i] = float32((len(text)+i)%7) + 1
	}
	return v
}

func (s *StubEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	s.SingleCalls++
	if s.FailTexts[text] {
		return nil, fmt.Errorf("embedding unavailable for %q", text)
	}
	return s.vector(text), nil
}

func (s *StubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.BatchCalls++
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if s.FailTexts[t] {
			return nil, fmt.Errorf("batch embedding failed at %q", t)
		}
		out = append(out, s.vector(t))
	}
	return out, nil
}

var (
	_ core.PageReader     = (*StubReader)(nil)
	_ core.DocumentOpener = (*StubOpener)(nil)
)

// StubReader serves canned page texts and placeholder image bytes.
type StubReader struct {
	PageTexts []string // index 0 is page 1
	Width     int
	Height    int

	RenderErr  error
	ExtractErr error
	Closed     bool
}

func (r *StubReader) PageCount() int { return len(r.PageTexts) }

func (r *StubReader) checkPage(page int) error {
	if page < 1 || page > len(r.PageTexts) {
		return fmt.Errorf("%w: page %d of %d", core.ErrPageOutOfRange, page, len(r.PageTexts))
	}
	return nil
}

func (r *StubReader) Dimensions(page int) (int, int, error) {
	if err := r.checkPage(page); err != nil {
		return 0, 0, err
	}
	return r.Width, r.Height, nil
}

func (r *StubReader) Render(page, targetWidth, _ int) ([]byte, error) {
	if err := r.checkPage(page); err != nil {
		return nil, err
	}
	if r.RenderErr != nil {
		return nil, r.RenderErr
	}
	return []byte(fmt.Sprintf("jpeg:page=%d;width=%d", page, targetWidth)), nil
}

func (r *StubReader) RenderAll(page int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(core.DefaultResolutions))
	for _, res := range core.DefaultResolutions {
		img, err := r.Render(page, res.Width, 85)
		if err != nil {
			return nil, err
		}
		out[res.Name] = img
	}
	return out, nil
}

func (r *StubReader) ExtractText(page int) (string, error) {
	if err := r.checkPage(page); err != nil {
		return "", err
	}
	if r.ExtractErr != nil {
		return "", r.ExtractErr
	}
	return r.PageTexts[page-1], nil
}

func (r *StubReader) Close() error {
	r.Closed = true
	return nil
}

// StubOpener hands out a fixed reader, or fails like a corrupt document.
type StubOpener struct {
	Reader  *StubReader
	OpenErr error
}

func (o *StubOpener) Open(_ []byte) (core.PageReader, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	return o.Reader, nil
}
