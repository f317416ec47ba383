package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"secure-quiz-service/internal/app"
	"secure-quiz-service/internal/bulkload"
	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/security"
)

// Handler exposes the quiz service over a JSON HTTP API.
type Handler struct {
	questions *app.QuestionService
	settings  *app.SettingsService
	sessions  *app.SessionService
	users     *app.UserService
	backups   *app.BackupService
	flow      *app.QuizFlowService
	audit     *app.AuditService
}

func NewHandler(
	questions *app.QuestionService,
	settings *app.SettingsService,
	sessions *app.SessionService,
	users *app.UserService,
	backups *app.BackupService,
	flow *app.QuizFlowService,
	audit *app.AuditService,
) *Handler {
	return &Handler{
		questions: questions,
		settings:  settings,
		sessions:  sessions,
		users:     users,
		backups:   backups,
		flow:      flow,
		audit:     audit,
	}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/login", h.login)
	mux.HandleFunc("POST /api/logout", h.logout)
	mux.HandleFunc("POST /api/tab-switch", h.tabSwitch)
	mux.HandleFunc("POST /api/security/event", h.securityEvent)
	mux.HandleFunc("GET /api/security/warnings", h.securityWarnings)

	mux.HandleFunc("POST /api/quiz/start", h.quizStart)
	mux.HandleFunc("GET /api/quiz/session", h.quizSession)
	mux.HandleFunc("POST /api/quiz/answer", h.quizAnswer)
	mux.HandleFunc("POST /api/quiz/next", h.quizNext)
	mux.HandleFunc("POST /api/quiz/previous", h.quizPrevious)
	mux.HandleFunc("POST /api/quiz/complete", h.quizComplete)
	mux.HandleFunc("GET /api/quiz/result", h.quizResult)

	mux.HandleFunc("GET /api/questions", h.listQuestions)
	mux.HandleFunc("POST /api/questions", h.addQuestion)
	mux.HandleFunc("PUT /api/questions/{id}", h.updateQuestion)
	mux.HandleFunc("DELETE /api/questions/{id}", h.deleteQuestion)
	mux.HandleFunc("POST /api/questions/bulk", h.bulkUpload)

	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("PUT /api/settings", h.putSettings)

	mux.HandleFunc("GET /api/users", h.listUsers)
	mux.HandleFunc("POST /api/users", h.createUser)
	mux.HandleFunc("DELETE /api/users/{username}", h.deleteUser)
	mux.HandleFunc("POST /api/users/{username}/block", h.blockUser)
	mux.HandleFunc("POST /api/users/{username}/unblock", h.unblockUser)
	mux.HandleFunc("GET /api/users/{username}/stats", h.userStats)

	mux.HandleFunc("GET /api/lockouts", h.listLockouts)
	mux.HandleFunc("DELETE /api/lockouts/{username}", h.removeLockout)

	mux.HandleFunc("GET /api/backup/export", h.exportBackup)
	mux.HandleFunc("POST /api/backup/import", h.importBackup)
	mux.HandleFunc("GET /api/backups", h.listBackups)
	mux.HandleFunc("POST /api/backups", h.createBackup)
	mux.HandleFunc("POST /api/backups/{id}/restore", h.restoreBackup)

	mux.HandleFunc("GET /api/audit", h.auditLog)
}

type errorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

type lockoutResponse struct {
	Error            string `json:"error"`
	Reason           string `json:"reason"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: write response failed: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses: validation 422, not found
// 404, lockout 423, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Messages: verr.Messages})
		return
	}
	var lerr *domain.LockoutError
	if errors.As(err, &lerr) {
		writeJSON(w, http.StatusLocked, lockoutResponse{
			Error:            lerr.Error(),
			Reason:           lerr.Reason,
			RemainingSeconds: int(lerr.Remaining / time.Second),
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUserExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUserBlocked), errors.Is(err, domain.ErrRetakeNotAllowed):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrQuizNotReady), errors.Is(err, domain.ErrBadBackup):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	sess, err := h.sessions.Login(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	h.flow.Discard(r.Context(), req.Username)
	h.sessions.Logout(r.Context(), req.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tabSwitch(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	count, locked := h.flow.RecordTabSwitch(r.Context(), req.Username)
	writeJSON(w, http.StatusOK, map[string]any{"tabSwitches": count, "locked": locked})
}

func (h *Handler) securityEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Event    string `json:"event"`
		Details  string `json:"details"`
	}
	if err := decode(r, &req); err != nil || req.Username == "" || req.Event == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and event are required"})
		return
	}
	count, locked := h.flow.ReportEvent(r.Context(), req.Username, security.EventType(req.Event), req.Details)
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "locked": locked})
}

func (h *Handler) securityWarnings(w http.ResponseWriter, r *http.Request) {
	warnings := h.flow.Warnings(r.URL.Query().Get("username"))
	if warnings == nil {
		warnings = []security.Warning{}
	}
	writeJSON(w, http.StatusOK, warnings)
}

func (h *Handler) quizStart(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	if !h.sessions.Validate(r.Context(), req.Username) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not logged in"})
		return
	}
	sess, err := h.flow.Start(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) quizSession(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	sess, err := h.flow.Resume(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) quizAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		QuestionID  string `json:"questionId"`
		OptionIndex int    `json:"optionIndex"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.flow.Answer(r.Context(), req.Username, req.QuestionID, req.OptionIndex); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) quizNext(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	sess, err := h.flow.Next(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) quizPrevious(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	sess, err := h.flow.Previous(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) quizComplete(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := h.flow.Complete(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) quizResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.flow.Result(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.questions.List(r.Context()))
}

func (h *Handler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decode(r, &q); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	added, err := h.questions.Add(r.Context(), q, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decode(r, &q); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	updated, err := h.questions.Update(r.Context(), r.PathValue("id"), q, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.questions.Delete(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bulkUpload accepts a CSV or JSON document of questions. Rows that fail to
// parse are reported; rows that parse are committed.
func (h *Handler) bulkUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
		return
	}

	var result bulkload.Result
	switch r.URL.Query().Get("format") {
	case "json":
		result = bulkload.ParseJSON(string(raw))
	default:
		result = bulkload.ParseCSV(string(raw))
	}

	added, err := h.questions.BulkAdd(r.Context(), result.Parsed, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(added),
		"errors":   result.Errors,
	})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get(r.Context()))
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var cfg domain.QuizSettings
	if err := decode(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	updated, err := h.settings.Update(r.Context(), cfg, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.users.List(r.Context()))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var u domain.ManagedUser
	if err := decode(r, &u); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	created, err := h.users.Create(r.Context(), u, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), r.PathValue("username"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) blockUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "Blocked by administrator"
	}
	if err := h.users.Block(r.Context(), r.PathValue("username"), req.Reason, actor(r), ""); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unblockUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Unblock(r.Context(), r.PathValue("username"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) listLockouts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Lockouts(r.Context()))
}

func (h *Handler) removeLockout(w http.ResponseWriter, r *http.Request) {
	h.sessions.RemoveLockout(r.Context(), r.PathValue("username"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := h.backups.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="quiz-backup.json"`)
	w.Write(raw)
}

func (h *Handler) importBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
		return
	}
	data, err := h.backups.Import(r.Context(), raw, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": len(data.Questions), "users": len(data.ManagedUsers)})
}

func (h *Handler) listBackups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.List(r.Context()))
}

func (h *Handler) createBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	backup, err := h.backups.Create(r.Context(), req.Name, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, backup)
}

func (h *Handler) restoreBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.backups.Restore(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.Entries(r.Context()))
}

// actor identifies the admin performing a mutation. The service trusts the
// header; authn is out of scope here.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}
