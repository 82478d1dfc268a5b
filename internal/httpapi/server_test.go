package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/loop"
	"github.com/rcliao/selfedit/internal/memory"
	"github.com/rcliao/selfedit/internal/model"
	"github.com/rcliao/selfedit/internal/oracle"
	"github.com/rcliao/selfedit/internal/planner"
	"github.com/rcliao/selfedit/internal/policy"
)

type memLog struct {
	messages []model.Message
}

func (m *memLog) AppendMessage(_ context.Context, role model.Role, content string, metadata map[string]any) (int64, error) {
	id := int64(len(m.messages) + 1)
	m.messages = append(m.messages, model.Message{ID: id, Role: role, Content: content, Metadata: metadata})
	return id, nil
}

func (m *memLog) AllMessages(context.Context) ([]model.Message, error) { return m.messages, nil }
func (m *memLog) StoreEmbeddings(context.Context, []string)           {}
func (m *memLog) SimilaritySearch(context.Context, string, int) []memory.Hit {
	return nil
}
func (m *memLog) Close() error { return nil }

type donePlanner struct{}

func (donePlanner) Propose(context.Context, planner.Request) (*planner.Proposal, error) {
	return &planner.Proposal{Done: true, Rationale: "nothing to do"}, nil
}

func newTestServer(t *testing.T) (*Server, *memLog) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.WorkDir = dir
	cfg.DBPath = filepath.Join(dir, "memory.db")
	cfg.AllowedRoots = []string{dir}
	cfg.TestCommand = []string{"sh", "-c", "exit 0"}
	cfg.TestTimeout = 5 * time.Second

	pe, err := policy.NewEngine(&cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	or := oracle.NewRunner(cfg.TestCommand, cfg.WorkDir, cfg.TestTimeout, nil)
	mem := &memLog{}
	orch := loop.New(mem, donePlanner{}, pe, or, &cfg, nil)
	return NewServer(orch, mem, nil), mem
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRunEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader(`{"goal": "keep the build green"}`)
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}

	var res loop.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.State != loop.StateDone {
		t.Fatalf("state = %q, want %q", res.State, loop.StateDone)
	}
	if res.RunID == "" {
		t.Fatal("run_id missing from response")
	}
}

func TestRunEndpointRequiresGoal(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogEndpoint(t *testing.T) {
	s, mem := newTestServer(t)
	for _, content := range []string{"one", "two", "three"} {
		if _, err := mem.AppendMessage(context.Background(), model.RoleUser, content, nil); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/log?limit=2", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var messages []model.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Content != "two" || messages[1].Content != "three" {
		t.Fatalf("unexpected tail: %q, %q", messages[0].Content, messages[1].Content)
	}
}

func TestLogEndpointRejectsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/log?limit=nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

