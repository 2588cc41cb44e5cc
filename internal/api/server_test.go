package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/store"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker runs for the life of the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fixture struct {
	server  *Server
	store   *store.SQLite
	project *models.Project
	alice   *models.User
}

func newTestServer(t *testing.T, replies ...string) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	p, err := st.CreateProject(ctx, "Apollo", "")
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	alice, err := st.CreateUser(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	script := make([]llm.MockReply, len(replies))
	for i, r := range replies {
		script[i] = llm.MockReply{Text: r}
	}
	eng := engine.New(st, llm.NewMockProvider(script...), nil, engine.Options{})
	return &fixture{
		server:  NewServer(eng, st, "127.0.0.1:0", nil, Options{}),
		store:   st,
		project: p,
		alice:   alice,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w.Result()
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint_OK(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	health := decodeBody[HealthResponse](t, resp)
	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	f := newTestServer(t)
	resp := f.do(t, http.MethodPost, "/health", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	f := newTestServer(t)
	f.store.Close()

	resp := f.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
	if health := decodeBody[HealthResponse](t, resp); health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
}

func TestChatThenConfirm(t *testing.T) {
	f := newTestServer(t, `{"action":"create","title":"Fix Login Bug","description":"d","status":"todo",
		"priority":"High","tags":"bug","startDate":"2025-03-01","dueDate":"2025-03-10","assignee":"alice"}`)

	resp := f.do(t, http.MethodPost, "/ai/chat", map[string]any{"message": "create a task called Fix Login Bug"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d", resp.StatusCode)
	}
	res := decodeBody[engine.TurnResult](t, resp)
	if res.Classification.State != "ready" {
		t.Fatalf("Expected ready, got %s (%s)", res.Classification.State, res.Classification.Message)
	}

	resp = f.do(t, http.MethodPost, "/ai/confirm", map[string]any{
		"intent":      res.Extracted,
		"actorUserId": f.alice.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}
	out := decodeBody[engine.Outcome](t, resp)
	if out.Message != "Task created successfully." {
		t.Errorf("unexpected message %q", out.Message)
	}
	if out.Task == nil || out.Task.Status != models.StatusToDo || out.Task.AssigneeUsername != "alice" {
		t.Errorf("unexpected task %+v", out.Task)
	}
}

func TestChat_Failures(t *testing.T) {
	f := newTestServer(t, "I have no idea")

	resp := f.do(t, http.MethodPost, "/ai/chat", map[string]any{"message": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message: expected 400, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/ai/chat", map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("prose reply: expected 502, got %d", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Message == "" || body.Message == "I have no idea" {
		t.Errorf("expected a plain-language message, got %q", body.Message)
	}

	req := httptest.NewRequest(http.MethodPost, "/ai/chat", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestConfirm_MissingTask(t *testing.T) {
	f := newTestServer(t)
	resp := f.do(t, http.MethodPost, "/ai/confirm", map[string]any{
		"intent":      map[string]any{"action": "delete", "taskId": "#999"},
		"actorUserId": f.alice.ID,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Message != "Unable to delete the task: Task #999 was not found." {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestTaskRoutes(t *testing.T) {
	f := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()
	task := &models.Task{
		Title: "Fix Login Bug", Status: models.StatusInProgress, Priority: models.PriorityHigh,
		ProjectID: f.project.ID, AuthorUserID: f.alice.ID, CreatedAt: now, UpdatedAt: now,
	}
	if err := f.store.WithinTx(ctx, func(tx store.Tx) error { return tx.InsertTask(ctx, task) }); err != nil {
		t.Fatalf("insert: %v", err)
	}
	path := fmt.Sprintf("/tasks/%d", task.ID)

	resp := f.do(t, http.MethodGet, fmt.Sprintf("/tasks?projectId=%d", f.project.ID), nil)
	if tasks := decodeBody[[]models.Task](t, resp); len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	resp = f.do(t, http.MethodPatch, path, map[string]any{
		"actorUserId": f.alice.ID,
		"fields":      map[string]any{"status": "Completed"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, path, nil)
	got := decodeBody[models.Task](t, resp)
	if got.Status != models.StatusCompleted || len(got.Activities) != 1 {
		t.Errorf("Expected completed with one activity, got %s / %d", got.Status, len(got.Activities))
	}

	resp = f.do(t, http.MethodDelete, path, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("delete without actor: expected 400, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, fmt.Sprintf("%s?actorUserId=%d", path, f.alice.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, path, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/tasks/abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", resp.StatusCode)
	}
}

func TestProjectAndUserRoutes(t *testing.T) {
	f := newTestServer(t)

	resp := f.do(t, http.MethodPost, "/projects", map[string]any{"name": "Gemini"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: expected 201, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/projects", map[string]any{"name": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank project: expected 400, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/projects", nil)
	if projects := decodeBody[[]models.Project](t, resp); len(projects) != 2 {
		t.Errorf("Expected 2 projects, got %d", len(projects))
	}

	resp = f.do(t, http.MethodPost, "/users", map[string]any{"username": "bob", "email": "bob@example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/users", nil)
	if users := decodeBody[[]models.User](t, resp); len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}

func TestServeAndShutdown(t *testing.T) {
	f := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	http.DefaultClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}
