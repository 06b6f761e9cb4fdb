package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ewastePickup/internal/apperr"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/identity"
	"ewastePickup/models"
)

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		writeError(w, a.Log, err)
		return p, false
	}
	return p, true
}

func requestID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid request id")
	}
	return id, nil
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg identity.Registration
	if err := decodeJSON(r, &reg); err != nil {
		writeError(w, a.Log, err)
		return
	}
	u, err := a.Identity.Register(r.Context(), reg)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	id := req.Email
	if id == "" {
		id = req.Username
	}
	sess, err := a.Identity.Login(r.Context(), id, req.Password)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	u, err := a.Identity.Me(r.Context(), p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *api) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var patch identity.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, a.Log, err)
		return
	}
	u, err := a.Identity.UpdateProfile(r.Context(), p, patch)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *api) handleListRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	list, err := a.Engine.List(r.Context(), p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (a *api) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var payload models.Payload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, a.Log, err)
		return
	}
	req, err := a.Engine.Create(r.Context(), payload, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": req})
}

func (a *api) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	req, err := a.Engine.Get(r.Context(), id, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	rating, err := a.Engine.Rating(r.Context(), id, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req, "rating": rating})
}

func (a *api) handleEditRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var patch models.PayloadPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, a.Log, err)
		return
	}
	req, err := a.Engine.Edit(r.Context(), id, patch, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (a *api) handleAssign(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var body struct {
		CollectorID int64 `json:"collector_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, a.Log, err)
		return
	}
	req, err := a.Engine.Assign(r.Context(), id, body.CollectorID, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (a *api) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, a.Log, err)
		return
	}
	target := models.RequestStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	req, err := a.Engine.SetStatus(r.Context(), id, target, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	req, err := a.Engine.Cancel(r.Context(), id, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (a *api) handleRate(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, a.Log, err)
		return
	}
	rt, err := a.Engine.Rate(r.Context(), id, body.Rating, body.Comment, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rating": rt})
}

func (a *api) handleListCollectors(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	list, err := a.Identity.ListCollectors(r.Context(), p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collectors": list})
}

func (a *api) handleRegisterCollector(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var reg identity.Registration
	if err := decodeJSON(r, &reg); err != nil {
		writeError(w, a.Log, err)
		return
	}
	u, err := a.Identity.RegisterCollector(r.Context(), reg, p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (a *api) requireAggregates(w http.ResponseWriter, r *http.Request) bool {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		writeError(w, a.Log, err)
		return false
	}
	return true
}

func (a *api) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if !a.requireAggregates(w, r) {
		return
	}
	st, err := a.Aggregates.DashboardStats(r.Context())
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleMonthlyReport renders the whole CSV before writing so a failure midway
// still yields a clean error response.
func (a *api) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if !a.requireAggregates(w, r) {
		return
	}
	month := r.URL.Query().Get("month")
	rows, err := a.Aggregates.MonthlyReport(r.Context(), month)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var buf bytes.Buffer
	if _, err := a.Reports.Render(r.Context(), &buf, rows); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ewaste-report-%s.csv"`, month))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
