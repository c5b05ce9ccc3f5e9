package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pdfrag-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	"github.com/yungbote/pdfrag-backend/internal/platform/gcp"
	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
	"github.com/yungbote/pdfrag-backend/internal/realtime/bus"
)

type ragFixture struct {
	svc     RAGQueryService
	client  *fakeOpenAI
	vectors *fakeVectors
	emitter *recordingEmitter
}

func newRAGFixture(t *testing.T, rows []domain.IndexedDocumentRow) *ragFixture {
	t.Helper()
	f := &ragFixture{
		client: &fakeOpenAI{streamFn: func([]openai.ChatMessage) ([]string, error) {
			return []string{"hello", " world"}, nil
		}},
		vectors: &fakeVectors{rows: rows},
		emitter: newRecordingEmitter(),
	}
	embedder := NewEmbeddingService(testutil.Logger(t), f.client, nil, EmbeddingConfig{})
	links := gcp.StaticURLResolver{BaseURL: "https://blobs.test", Container: "pdfs"}
	f.svc = NewRAGQueryService(testutil.Logger(t), embedder, f.vectors, f.client, f.emitter, links, RAGQueryConfig{})
	return f
}

func row(text, filename string, page int) domain.IndexedDocumentRow {
	return domain.IndexedDocumentRow{ID: uuid.New(), OriginalText: text, Filename: filename, PageNumber: page}
}

func actions(events []realtime.ClientEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Action
	}
	return out
}

func TestAnswerStreamsEachDocumentInOrder(t *testing.T) {
	a := row("about storage", "app service.pdf", 3)
	b := row("about networking", "b.pdf", 1)
	f := newRAGFixture(t, []domain.IndexedDocumentRow{a, b})

	f.svc.Answer(context.Background(), "how to scale", "s1")

	perDoc := byDocument(f.emitter.Session("s1"))
	require.Len(t, perDoc, 2)
	for _, r := range []domain.IndexedDocumentRow{a, b} {
		events := perDoc[r.ID.String()]
		require.Equal(t, []string{
			realtime.ActionCreate,
			realtime.ActionCreateLink,
			realtime.ActionAddMessage,
			realtime.ActionAddMessage,
			realtime.ActionDone,
		}, actions(events))
		require.Equal(t, r.PageNumber, events[1].PageNumber)
		require.Equal(t, r.Filename, events[1].Filename)
		require.Equal(t, "hello", events[2].Content)
		require.Equal(t, "<SPECIAL_WHITE_SPACE>world", events[3].Content)
	}
	require.Equal(t, "https://blobs.test/pdfs/app%20service.pdf#page=3", perDoc[a.ID.String()][1].URL)
	require.Equal(t, 5, f.vectors.lastK)
	require.Equal(t, 2, f.client.ChatCalls())
}

func TestAnswerStreamErrorIsPerDocument(t *testing.T) {
	good := row("fine", "a.pdf", 1)
	bad := row("explodes", "a.pdf", 2)
	f := newRAGFixture(t, []domain.IndexedDocumentRow{good, bad})
	f.client.streamFn = func(messages []openai.ChatMessage) ([]string, error) {
		if strings.Contains(messages[1].Content, "explodes") {
			return []string{"par"}, errors.New("stream reset")
		}
		return []string{"ok"}, nil
	}

	f.svc.Answer(context.Background(), "q", "s1")

	perDoc := byDocument(f.emitter.Session("s1"))
	require.Equal(t, []string{"create", "createLink", "addMessage", "done"}, actions(perDoc[good.ID.String()]))
	badEvents := perDoc[bad.ID.String()]
	require.Equal(t, []string{"create", "createLink", "addMessage", "error"}, actions(badEvents))
	require.NotEmpty(t, badEvents[3].Message)
}

func TestAnswerWithStoreFailureEmitsNothing(t *testing.T) {
	f := newRAGFixture(t, nil)
	f.vectors.queryErr = errors.New("connection refused")

	f.svc.Answer(context.Background(), "q", "s1")

	require.Empty(t, f.emitter.Session("s1"))
	require.Equal(t, 0, f.client.ChatCalls())
}

func TestAnswerStopsWhenSessionTerminated(t *testing.T) {
	f := newRAGFixture(t, []domain.IndexedDocumentRow{row("x", "a.pdf", 1)})
	f.emitter.result = func(ev realtime.ClientEvent) realtime.EmitResult {
		if ev.Action == realtime.ActionCreateLink {
			return realtime.EmitTerminated
		}
		return realtime.EmitOK
	}

	f.svc.Answer(context.Background(), "q", "s1")

	require.Equal(t, []string{"create", "createLink"}, actions(f.emitter.Session("s1")))
	require.Equal(t, 0, f.client.ChatCalls())
}

type countingBus struct {
	mu   sync.Mutex
	sent []bus.Envelope
}

func (b *countingBus) Publish(_ context.Context, env bus.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, env)
	return nil
}

func (b *countingBus) StartForwarder(context.Context, func(bus.Envelope)) error { return nil }
func (b *countingBus) Close() error { return nil }

func (b *countingBus) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func TestAnswerOverBusStopsWhenSessionReleased(t *testing.T) {
	reg := realtime.NewRegistry(testutil.Logger(t), 8)
	sub := reg.GetOrCreate("s1").Subscribe()
	b := &countingBus{}
	f := newRAGFixture(t, []domain.IndexedDocumentRow{row("x", "a.pdf", 1)})
	f.svc = NewRAGQueryService(testutil.Logger(t),
		NewEmbeddingService(testutil.Logger(t), f.client, nil, EmbeddingConfig{}),
		f.vectors, f.client, bus.NewEmitter(testutil.Logger(t), b, reg), nil, RAGQueryConfig{})
	f.client.streamFn = func([]openai.ChatMessage) ([]string, error) {
		reg.Release("s1", sub)
		return []string{"a", "b", "c"}, nil
	}

	f.svc.Answer(context.Background(), "q", "s1")

	var got []string
	for payload := range sub.C {
		ev, err := realtime.DecodeClientEvent(payload)
		require.NoError(t, err)
		got = append(got, ev.Action)
	}
	require.Equal(t, []string{"create", "createLink"}, got)
	require.Equal(t, 0, b.Sent())
	require.Equal(t, 1, f.client.ChatCalls())
}

func TestAnswerContinuesWithoutSubscriber(t *testing.T) {
	f := newRAGFixture(t, []domain.IndexedDocumentRow{row("x", "a.pdf", 1)})
	f.emitter.result = func(realtime.ClientEvent) realtime.EmitResult { return realtime.EmitZeroSubscriber }

	f.svc.Answer(context.Background(), "q", "nobody")

	require.Len(t, f.emitter.Session("nobody"), 5)
}

func TestSubmitReturnsBeforeWorkCompletes(t *testing.T) {
	f := newRAGFixture(t, []domain.IndexedDocumentRow{row("x", "a.pdf", 1)})
	release := make(chan struct{})
	f.client.streamFn = func([]openai.ChatMessage) ([]string, error) {
		<-release
		return []string{"late"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Submit(ctx, "q", "s1")
	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, f.svc.Wait(waitCtx))
	require.Equal(t, []string{"create", "createLink", "addMessage", "done"}, actions(f.emitter.Session("s1")))
}

func TestBuildRAGMessages(t *testing.T) {
	msgs := BuildRAGMessages("DOC BODY", "scaling")
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "user", msgs[1].Role)
	require.Contains(t, msgs[1].Content, `""" DOC BODY """`)
	require.Contains(t, msgs[1].Content, `"scaling"`)
}
