package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

func TestWebhookHandler_PostsBody(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	fn := WebhookHandler(srv.Client())
	params := json.RawMessage(fmt.Sprintf(`{"url":%q,"body":{"order":9}}`, srv.URL))
	if err := fn(context.Background(), params); err != nil {
		t.Fatalf("webhook handler failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("got method %s, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("got content type %q, want application/json", gotContentType)
	}
	if gotBody != `{"order":9}` {
		t.Errorf("got body %s, want {\"order\":9}", gotBody)
	}
}

func TestWebhookHandler_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fn := WebhookHandler(srv.Client())
	params := json.RawMessage(fmt.Sprintf(`{"url":%q}`, srv.URL))
	err := fn(context.Background(), params)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestWebhookHandler_BadParameters(t *testing.T) {
	fn := WebhookHandler(http.DefaultClient)

	if err := fn(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for malformed parameters")
	}
	if err := fn(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestRegisterBuiltinHandlers_InvokableByName(t *testing.T) {
	s := NewScheduler(time.Minute, testLogger())
	RegisterBuiltinHandlers(s, testLogger())

	job := &store.JobDescriptor{ID: uuid.New(), Name: HandlerLog}
	if err := s.Invoke(context.Background(), job, json.RawMessage(`{"note":"hi"}`)); err != nil {
		t.Errorf("log handler failed: %v", err)
	}

	// The webhook handler must be registered too, even though this params
	// payload makes it fail fast.
	job = &store.JobDescriptor{ID: uuid.New(), Name: HandlerWebhook}
	err := s.Invoke(context.Background(), job, json.RawMessage(`{}`))
	if err == nil || strings.Contains(err.Error(), "no handler registered") {
		t.Errorf("webhook handler not registered: %v", err)
	}
}

type fakeDescriptorLister struct {
	jobs []store.JobDescriptor
	err  error
}

func (f *fakeDescriptorLister) ListRecurringJobDescriptors(ctx context.Context) ([]store.JobDescriptor, error) {
	return f.jobs, f.err
}

func TestRearmRecurring_ReschedulesPersistedDescriptors(t *testing.T) {
	s := NewScheduler(time.Minute, testLogger())

	good1 := store.JobDescriptor{ID: uuid.New(), Name: "nightly-report", CronSpec: "0 3 * * *"}
	good2 := store.JobDescriptor{ID: uuid.New(), Name: "invoice-sync", CronSpec: "*/5 * * * *"}
	bad := store.JobDescriptor{ID: uuid.New(), Name: "corrupt", CronSpec: "not a cron spec"}

	lister := &fakeDescriptorLister{jobs: []store.JobDescriptor{good1, bad, good2}}
	armed, err := RearmRecurring(context.Background(), lister, s, testLogger())
	if err != nil {
		t.Fatalf("RearmRecurring failed: %v", err)
	}
	if armed != 2 {
		t.Errorf("got %d armed jobs, want 2", armed)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range []uuid.UUID{good1.ID, good2.ID} {
		if _, ok := s.entries[id]; !ok {
			t.Errorf("cron entry missing for job %s", id)
		}
	}
	if _, ok := s.entries[bad.ID]; ok {
		t.Error("invalid spec must not be armed")
	}
}

func TestRearmRecurring_ListFailure(t *testing.T) {
	s := NewScheduler(time.Minute, testLogger())

	lister := &fakeDescriptorLister{err: errors.New("connection refused")}
	if _, err := RearmRecurring(context.Background(), lister, s, testLogger()); err == nil {
		t.Error("expected error when the listing fails")
	}
}
