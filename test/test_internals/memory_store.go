package test_internals

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/datastores"
)

type memoryUpload struct {
	key     string
	parts   map[int][]byte
	aborted bool
}

// MemoryStore is an in-memory datastores.ObjectStore. Listings are paged by PageSize, and the
// multipart contract is tracked so tests can assert nothing was left behind.
type MemoryStore struct {
	PageSize int

	// OpenHook, when set, may replace the reader returned for a key. Returning nil keeps the default.
	OpenHook func(key string, r io.ReadCloser) io.ReadCloser
	// PartHook, when set, can fail individual part uploads.
	PartHook func(number int) error
	// ListHook, when set, can fail listing calls.
	ListHook func(token string) error

	lock      sync.Mutex
	objects   map[string][]byte
	modified  map[string]time.Time
	uploads   map[string]*memoryUpload
	vanished  map[string]bool
	uploadSeq int
	listCalls int
	aborts    int
	presigns  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		PageSize: 1000,
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
		vanished: make(map[string]bool),
		uploads:  make(map[string]*memoryUpload),
	}
}

func (m *MemoryStore) Put(key string, content []byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.objects[key] = content
	m.modified[key] = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

// Vanish keeps the object in listings but makes reads report it missing, as if it was deleted
// between listing and reading.
func (m *MemoryStore) Vanish(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.vanished[key] = true
}

func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

func (m *MemoryStore) ListCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.listCalls
}

// PresignCalls is how many links have been signed so far.
func (m *MemoryStore) PresignCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.presigns
}

func (m *MemoryStore) Aborts() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.aborts
}

// LiveParts counts parts belonging to uploads that were neither completed nor aborted.
func (m *MemoryStore) LiveParts() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for _, u := range m.uploads {
		if !u.aborted {
			n += len(u.parts)
		}
	}
	return n
}

func (m *MemoryStore) Bucket() string {
	return "memory"
}

func (m *MemoryStore) ListPage(ctx context.Context, prefix string, continuationToken string) (*datastores.ListPage, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listCalls++
	if m.ListHook != nil {
		if err := m.ListHook(continuationToken); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > continuationToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &datastores.ListPage{Objects: make([]datastores.ObjectInfo, 0)}
	for i, k := range keys {
		if i >= m.PageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, datastores.ObjectInfo{
			Key:          k,
			Size:         int64(len(m.objects[k])),
			LastModified: m.modified[k],
		})
	}
	return page, nil
}

func (m *MemoryStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	m.lock.Lock()
	b, ok := m.objects[key]
	if m.vanished[key] {
		ok = false
	}
	hook := m.OpenHook
	m.lock.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", key, common.ErrObjectNotFound)
	}

	var r io.ReadCloser = io.NopCloser(bytes.NewReader(b))
	if hook != nil {
		if replaced := hook(key, r); replaced != nil {
			r = replaced
		}
	}
	return r, int64(len(b)), nil
}

func (m *MemoryStore) BeginUpload(ctx context.Context, key string, contentType string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.uploadSeq++
	id := fmt.Sprintf("upload-%d", m.uploadSeq)
	m.uploads[id] = &memoryUpload{key: key, parts: make(map[int][]byte)}
	return id, nil
}

func (m *MemoryStore) UploadPart(ctx context.Context, key string, uploadId string, number int, data io.ReadSeeker, size int64) (datastores.CompletedPart, error) {
	if m.PartHook != nil {
		if err := m.PartHook(number); err != nil {
			return datastores.CompletedPart{}, err
		}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return datastores.CompletedPart{}, err
	}
	if int64(len(b)) != size {
		return datastores.CompletedPart{}, fmt.Errorf("part %d: expected %d bytes, got %d", number, size, len(b))
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	u, ok := m.uploads[uploadId]
	if !ok || u.aborted {
		return datastores.CompletedPart{}, errors.New("no such upload")
	}
	u.parts[number] = b
	return datastores.CompletedPart{Number: number, ETag: fmt.Sprintf("etag-%d", number), Size: size}, nil
}

func (m *MemoryStore) CompleteUpload(ctx context.Context, key string, uploadId string, parts []datastores.CompletedPart) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	u, ok := m.uploads[uploadId]
	if !ok || u.aborted {
		return "", errors.New("no such upload")
	}

	buf := &bytes.Buffer{}
	for i, p := range parts {
		if p.Number != i+1 {
			return "", fmt.Errorf("parts out of order: %d at position %d", p.Number, i)
		}
		b, ok := u.parts[p.Number]
		if !ok {
			return "", fmt.Errorf("missing part %d", p.Number)
		}
		buf.Write(b)
	}
	m.objects[u.key] = buf.Bytes()
	m.modified[u.key] = time.Now()
	delete(m.uploads, uploadId)
	return "memory://memory/" + u.key, nil
}

func (m *MemoryStore) AbortUpload(ctx context.Context, key string, uploadId string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.aborts++
	u, ok := m.uploads[uploadId]
	if !ok {
		return errors.New("no such upload")
	}
	u.aborted = true
	u.parts = make(map[int][]byte)
	return nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.lock.Lock()
	m.presigns++
	m.lock.Unlock()
	return fmt.Sprintf("memory://memory/%s?expires=%d", key, int(ttl.Seconds())), nil
}

// StallingReader blocks every read until its context ends or the reader is closed.
type StallingReader struct {
	closed chan struct{}
	once   sync.Once
}

func NewStallingReader() *StallingReader {
	return &StallingReader{closed: make(chan struct{})}
}

func (s *StallingReader) Read(p []byte) (int, error) {
	<-s.closed
	return 0, io.ErrClosedPipe
}

func (s *StallingReader) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	return nil
}
