package web

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vennietweek/llm-chat/internal/models"
	"github.com/vennietweek/llm-chat/internal/storage"
	"github.com/vennietweek/llm-chat/internal/worker"
)

type fakeDispatcher struct {
	store *storage.MessageStore
	reply string
	err   error
	input string
}

func (f *fakeDispatcher) Process(ctx context.Context, userInput string) (*models.Message, error) {
	f.input = userInput
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Add(ctx, models.RoleAssistant, f.reply)
}

func newTestRouter(t *testing.T, dispatcher *fakeDispatcher) (*gin.Engine, *storage.MessageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewMessageStore(db)
	if dispatcher != nil {
		dispatcher.store = store
	}

	router := gin.New()
	NewHandler(store, dispatcher, time.Minute).RegisterRoutes(router)
	return router, store
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIndexShowsHistory(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{})
	ctx := context.Background()
	if _, err := store.Add(ctx, models.RoleUser, "<b>hello</b>"); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if _, err := store.Add(ctx, models.RoleAssistant, "**hi there**"); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "&lt;b&gt;hello&lt;/b&gt;") {
		t.Fatalf("user turn must be escaped: %q", body)
	}
	if !strings.Contains(body, "<strong>hi there</strong>") {
		t.Fatalf("assistant turn must be rendered markdown: %q", body)
	}
	if strings.Contains(body, "/process") {
		t.Fatalf("index page must not auto-refresh: %q", body)
	}
}

func TestCaptureInputStoresTurnAndShowsSpinner(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{})

	w := postForm(router, "/chat", url.Values{"user_input": {"what is go?"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "what is go?") {
		t.Fatalf("expected the new turn on the page: %q", body)
	}
	if !strings.Contains(body, "loading-spinner") {
		t.Fatalf("expected the loading bubble: %q", body)
	}
	if !strings.Contains(body, `content="1;url=/process"`) {
		t.Fatalf("expected the refresh into /process: %q", body)
	}

	msgs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != models.RoleUser || msgs[0].Content != "what is go?" {
		t.Fatalf("user turn not stored: %+v", msgs)
	}
}

func TestCaptureInputRejectsBlank(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{})

	w := postForm(router, "/chat", url.Values{"user_input": {"   "}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect for blank input, got %d", w.Code)
	}
	msgs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("blank input must not be stored: %+v", msgs)
	}
}

func TestProcessRunsPendingTurn(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: "go is a language"}
	router, store := newTestRouter(t, dispatcher)
	if _, err := store.Add(context.Background(), models.RoleUser, "what is go?"); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/process", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if dispatcher.input != "what is go?" {
		t.Fatalf("dispatcher got input %q", dispatcher.input)
	}
	if !strings.Contains(w.Body.String(), `url=/`) {
		t.Fatalf("expected redirect home: %q", w.Body.String())
	}

	msgs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "go is a language" {
		t.Fatalf("reply not stored: %+v", msgs)
	}
}

func TestProcessWithNothingPending(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: "unused"}
	router, store := newTestRouter(t, dispatcher)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/process", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if dispatcher.input != "" {
		t.Fatalf("dispatcher must not run without a pending turn")
	}
	msgs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no stored turns, got %+v", msgs)
	}
}

func TestProcessMapsBusyToTooManyRequests(t *testing.T) {
	dispatcher := &fakeDispatcher{err: worker.ErrDispatcherBusy}
	router, store := newTestRouter(t, dispatcher)
	if _, err := store.Add(context.Background(), models.RoleUser, "hi"); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/process", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "url=/process") {
		t.Fatalf("busy page must retry /process: %q", w.Body.String())
	}
}

func TestStaticStylesheetServed(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDispatcher{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for stylesheet, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ".chat-bubble") {
		t.Fatal("stylesheet content missing")
	}
}
