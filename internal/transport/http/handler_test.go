package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"secure-quiz-service/internal/app"
	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/infra/memory"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

type testServer struct {
	*httptest.Server
	hub *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.New(memory.NewBlobStore())
	hub := realtime.NewHub()
	audit := app.NewAuditService(st)
	questions := app.NewQuestionService(st, audit, hub)
	settings := app.NewSettingsService(st, audit, hub)
	sessions := app.NewSessionService(st, audit, hub)
	users := app.NewUserService(st, audit, hub)
	backups := app.NewBackupService(st, audit, hub)
	flow := app.NewQuizFlowService(st, users, sessions, audit, hub)

	handler := NewHandler(questions, settings, sessions, users, backups, flow, audit)
	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(hub, flow).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testServer{Server: server, hub: hub}
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (s *testServer) seedQuestions(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		resp := s.postJSON(t, "/api/questions", domain.Question{
			Text:          fmt.Sprintf("question %d", i),
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: 0,
			Difficulty:    domain.DifficultyEasy,
			Category:      "General",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed question %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestQuizFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.seedQuestions(t, 6)

	resp := s.postJSON(t, "/api/login", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = s.postJSON(t, "/api/quiz/start", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	var sess struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	resp.Body.Close()
	if len(sess.Questions) != 5 {
		t.Fatalf("expected 5 drawn questions, got %d", len(sess.Questions))
	}

	for _, q := range sess.Questions {
		resp = s.postJSON(t, "/api/quiz/answer", map[string]any{
			"username":    "alice",
			"questionId":  q.ID,
			"optionIndex": q.CorrectAnswer,
		})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("answer: status %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = s.postJSON(t, "/api/quiz/complete", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: status %d", resp.StatusCode)
	}
	var result domain.QuizResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	resp.Body.Close()
	if result.Score != 100 || result.CorrectAnswers != 5 {
		t.Fatalf("expected a perfect score, got %+v", result)
	}
}

func TestQuizStartWithEmptyBankReturns400(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON(t, "/api/login", map[string]string{"username": "bob"})
	resp.Body.Close()

	resp = s.postJSON(t, "/api/quiz/start", map[string]string{"username": "bob"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty bank, got %d", resp.StatusCode)
	}
}

func TestSettingsValidationReturns422(t *testing.T) {
	s := newTestServer(t)

	cfg := domain.DefaultSettings()
	cfg.TimeLimit = 10
	raw, _ := json.Marshal(cfg)
	req, _ := http.NewRequest(http.MethodPut, s.URL+"/api/settings", bytes.NewReader(raw))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT settings: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var body struct {
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if len(body.Messages) == 0 {
		t.Fatal("expected violation messages in the response")
	}
}

func TestTabSwitchLockoutReturns423OnLogin(t *testing.T) {
	s := newTestServer(t)
	s.seedQuestions(t, 5)

	resp := s.postJSON(t, "/api/login", map[string]string{"username": "carol"})
	resp.Body.Close()

	var locked bool
	for i := 0; i < 3; i++ {
		resp = s.postJSON(t, "/api/tab-switch", map[string]string{"username": "carol"})
		var body struct {
			Locked bool `json:"locked"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode tab-switch body: %v", err)
		}
		resp.Body.Close()
		locked = body.Locked
	}
	if !locked {
		t.Fatal("third tab switch should lock")
	}

	resp = s.postJSON(t, "/api/login", map[string]string{"username": "carol"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("expected 423, got %d", resp.StatusCode)
	}
	var body struct {
		RemainingSeconds int    `json:"remainingSeconds"`
		Reason           string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode lockout body: %v", err)
	}
	if body.RemainingSeconds <= 0 || body.Reason == "" {
		t.Fatalf("expected countdown payload, got %+v", body)
	}
}

func TestQuestionNotFoundReturns404(t *testing.T) {
	s := newTestServer(t)

	req, _ := http.NewRequest(http.MethodDelete, s.URL+"/api/questions/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestBulkUploadCSVReportsRowErrors(t *testing.T) {
	s := newTestServer(t)

	csv := "question,option1,option2,option3,option4,correct,difficulty,category,explanation\n" +
		"Good question,a,b,,,2,easy,Math,\n" +
		"Bad question,only,,,,1,easy,Math,\n"
	resp, err := http.Post(s.URL+"/api/questions/bulk", "text/csv", bytes.NewReader([]byte(csv)))
	if err != nil {
		t.Fatalf("POST bulk: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Imported int      `json:"imported"`
		Errors   []string `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Imported != 1 {
		t.Fatalf("expected 1 imported row, got %d", body.Imported)
	}
	if len(body.Errors) != 1 {
		t.Fatalf("expected 1 row error, got %v", body.Errors)
	}
}

func TestBackupImportRejectsBadDocument(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Post(s.URL+"/api/backup/import", "application/json", bytes.NewReader([]byte(`{"settings":{}}`)))
	if err != nil {
		t.Fatalf("POST import: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
