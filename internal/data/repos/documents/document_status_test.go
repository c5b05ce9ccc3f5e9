package documents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/pdfrag-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/pdfrag-backend/internal/domain/documents"
	pkgerrors "github.com/yungbote/pdfrag-backend/internal/pkg/errors"
	"github.com/yungbote/pdfrag-backend/internal/platform/dbctx"
)

func newRepo(t *testing.T) DocumentStatusRepo {
	t.Helper()
	return NewDocumentStatusRepo(testutil.SQLite(t), testutil.Logger(t))
}

func seed(t *testing.T, repo DocumentStatusRepo, dbc dbctx.Context) uuid.UUID {
	t.Helper()
	id := uuid.New()
	created, err := repo.Create(dbc, &domain.DocumentStatus{ID: id, Filename: "a.pdf", PageNumber: 2, Status: domain.StatusPageSeparated})
	if err != nil || !created {
		t.Fatalf("Create: created=%v err=%v", created, err)
	}
	return id
}

func TestCreateIsIdempotent(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	created, err := repo.Create(dbc, &domain.DocumentStatus{ID: id, Filename: "other.pdf", PageNumber: 9, Status: domain.StatusPageSeparated})
	if err != nil {
		t.Fatalf("duplicate Create: %v", err)
	}
	if created {
		t.Fatalf("duplicate Create: want created=false")
	}
	rec, err := repo.GetByID(dbc, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Filename != "a.pdf" || rec.PageNumber != 2 {
		t.Fatalf("duplicate overwrote record: got=%+v", rec)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	for _, to := range []domain.Status{domain.StatusEmbeddingInvoked, domain.StatusDbInserted, domain.StatusCompleted} {
		got, err := repo.Transition(dbc, id, to, nil)
		if err != nil {
			t.Fatalf("Transition %s: %v", to, err)
		}
		if got != to {
			t.Fatalf("Transition: want=%s got=%s", to, got)
		}
	}
}

func TestTransitionRepeatIsNoop(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	for i := 0; i < 2; i++ {
		if _, err := repo.Transition(dbc, id, domain.StatusEmbeddingInvoked, nil); err != nil {
			t.Fatalf("Transition #%d: %v", i, err)
		}
	}
}

func TestTransitionRejectsBackwardAndTerminalExit(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	if _, err := repo.Transition(dbc, id, domain.StatusDbInsertionFailed, map[string]any{"stage": "embed"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, err := repo.Transition(dbc, id, domain.StatusCompleted, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Completed after Failed: want ErrInvalidTransition got=%v", err)
	}
	if got != domain.StatusDbInsertionFailed {
		t.Fatalf("status after rejected move: want=%s got=%s", domain.StatusDbInsertionFailed, got)
	}
	rec, _ := repo.GetByID(dbc, id)
	if string(rec.Detail) != `{"stage":"embed"}` {
		t.Fatalf("detail: got=%s", string(rec.Detail))
	}
}

func TestTransitionRetryCountsAttempts(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	for i := 0; i < 3; i++ {
		if _, err := repo.Transition(dbc, id, domain.StatusEmbeddingRetrying, nil); err != nil {
			t.Fatalf("retry #%d: %v", i, err)
		}
	}
	rec, err := repo.GetByID(dbc, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", rec.Attempts)
	}
	if _, err := repo.Transition(dbc, id, domain.StatusEmbeddingInvoked, nil); err != nil {
		t.Fatalf("invoked after retries: %v", err)
	}
}

func TestTransitionMissingRecord(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.Transition(dbctx.Context{Ctx: context.Background()}, uuid.New(), domain.StatusCompleted, nil)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound got=%v", err)
	}
}

func rank(s domain.Status) int {
	switch s {
	case domain.StatusPageSeparated:
		return 0
	case domain.StatusEmbeddingRetrying:
		return 1
	case domain.StatusEmbeddingInvoked:
		return 2
	case domain.StatusDbInserted:
		return 3
	default:
		return 4
	}
}

func TestConcurrentTransitionsNeverMoveBackward(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	id := seed(t, repo, dbc)

	order := []domain.Status{
		domain.StatusCompleted, domain.StatusEmbeddingInvoked, domain.StatusDbInserted,
		domain.StatusEmbeddingRetrying, domain.StatusEmbeddingInvoked, domain.StatusDbInserted,
		domain.StatusCompleted, domain.StatusEmbeddingInvoked,
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	readErr := make(chan string, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			rec, err := repo.GetByID(dbc, id)
			if err != nil {
				continue
			}
			r := rank(rec.Status)
			if r < last {
				select {
				case readErr <- string(rec.Status):
				default:
				}
				return
			}
			last = r
		}
	}()

	for round := 0; round < 4; round++ {
		var writers sync.WaitGroup
		for _, to := range order {
			writers.Add(1)
			go func(to domain.Status) {
				defer writers.Done()
				_, _ = repo.Transition(dbc, id, to, nil)
			}(to)
		}
		writers.Wait()
	}
	close(stop)
	wg.Wait()

	select {
	case s := <-readErr:
		t.Fatalf("observed backward status %s", s)
	default:
	}
	rec, err := repo.GetByID(dbc, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("final: want=%s got=%s", domain.StatusCompleted, rec.Status)
	}
}

func TestListAllAndFailed(t *testing.T) {
	repo := newRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	seed(t, repo, dbc)
	bad := seed(t, repo, dbc)

	if _, err := repo.Transition(dbc, bad, domain.StatusDbInsertionFailed, nil); err != nil {
		t.Fatalf("fail: %v", err)
	}
	all, err := repo.ListAll(dbc)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListAll: want 2 got=%d err=%v", len(all), err)
	}
	failed, err := repo.ListByStatus(dbc, domain.StatusDbInsertionFailed)
	if err != nil || len(failed) != 1 || failed[0].ID != bad {
		t.Fatalf("ListByStatus: got=%+v err=%v", failed, err)
	}
}
