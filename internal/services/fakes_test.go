package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/pdfrag-backend/internal/data/repos/documents"
	"github.com/yungbote/pdfrag-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

type fakeOpenAI struct {
	mu         sync.Mutex
	embedCalls int
	embedFn    func(call int, input string) (openai.EmbedResult, error)
	chatCalls  int
	streamFn   func(messages []openai.ChatMessage) ([]string, error)
}

func (f *fakeOpenAI) Embed(_ context.Context, input string) (openai.EmbedResult, error) {
	f.mu.Lock()
	f.embedCalls++
	call := f.embedCalls
	f.mu.Unlock()
	if f.embedFn == nil {
		return openai.EmbedResult{Vector: []float32{1, 2, 3}, Model: "test-embed"}, nil
	}
	return f.embedFn(call, input)
}

func (f *fakeOpenAI) StreamChat(_ context.Context, messages []openai.ChatMessage, onDelta func(string) error) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	deltas, streamErr := f.streamFn(messages)
	var sb strings.Builder
	for _, d := range deltas {
		if err := onDelta(d); err != nil {
			return sb.String(), err
		}
		sb.WriteString(d)
	}
	return sb.String(), streamErr
}

func (f *fakeOpenAI) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func (f *fakeOpenAI) ChatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

type fakeVectors struct {
	mu        sync.Mutex
	inserted  []domain.IndexedDocumentRow
	insertErr func(row domain.IndexedDocumentRow) error
	rows      []domain.IndexedDocumentRow
	queryErr  error
	lastK     int
}

func (f *fakeVectors) Insert(_ context.Context, row domain.IndexedDocumentRow) error {
	if f.insertErr != nil {
		if err := f.insertErr(row); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, row)
	return nil
}

func (f *fakeVectors) QueryNearest(_ context.Context, _ []float32, k int) ([]domain.IndexedDocumentRow, error) {
	f.mu.Lock()
	f.lastK = k
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

var _ documents.VectorRepo = (*fakeVectors)(nil)

type fakeExtractor struct {
	pages []gcp.PageText
	err   error
	calls int
}

func (f *fakeExtractor) ExtractPages(context.Context, []byte, string) ([]gcp.PageText, error) {
	f.calls++
	return f.pages, f.err
}

func (f *fakeExtractor) Close() error { return nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events map[string][]realtime.ClientEvent
	result func(ev realtime.ClientEvent) realtime.EmitResult
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{events: map[string][]realtime.ClientEvent{}}
}

func (e *recordingEmitter) Emit(_ context.Context, sessionID string, payload string) realtime.EmitResult {
	ev, err := realtime.DecodeClientEvent(payload)
	if err != nil {
		panic(err)
	}
	e.mu.Lock()
	e.events[sessionID] = append(e.events[sessionID], ev)
	e.mu.Unlock()
	if e.result != nil {
		return e.result(ev)
	}
	return realtime.EmitOK
}

func (e *recordingEmitter) Session(id string) []realtime.ClientEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]realtime.ClientEvent(nil), e.events[id]...)
}

// byDocument groups a session's events per document, keeping arrival order.
func byDocument(events []realtime.ClientEvent) map[string][]realtime.ClientEvent {
	out := map[string][]realtime.ClientEvent{}
	for _, ev := range events {
		out[ev.DocumentID] = append(out[ev.DocumentID], ev)
	}
	return out
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failUp  error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) PublicURL(key string) string { return "https://blobs.test/pdfs/" + key }

func (b *fakeBlobs) Upload(_ context.Context, key string, r io.Reader) error {
	if b.failUp != nil {
		return b.failUp
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return bytes.Clone(data), nil
}

func (b *fakeBlobs) Close() error { return nil }

func newTestTracker(t *testing.T) StatusTracker {
	t.Helper()
	repo := documents.NewDocumentStatusRepo(testutil.SQLite(t), testutil.Logger(t))
	return NewStatusTracker(testutil.Logger(t), repo)
}
