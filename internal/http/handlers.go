package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"kharcha/internal/backend"
	"kharcha/internal/core"
	"kharcha/internal/services"
)

type categoryResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	SortOrder   int64  `json:"sort_order"`
}

type subCategoryResponse struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	SortOrder   int64  `json:"sort_order"`
}

type expenseResponse struct {
	LocalID       int64   `json:"local_id"`
	ID            *int64  `json:"id,omitempty"`
	Amount        float64 `json:"amount"`
	ExpenseDate   string  `json:"expense_date"`
	CategoryID    int64   `json:"category_id"`
	SubCategoryID *int64  `json:"sub_category_id,omitempty"`
	Description   string  `json:"description,omitempty"`
	ItemName      string  `json:"item_name,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	Priority      string  `json:"priority"`
	PaymentType   string  `json:"payment_type"`
	IsEMI         bool    `json:"is_emi"`
	IsVacation    bool    `json:"is_vacation"`
	Synced        bool    `json:"synced"`
}

type createExpenseRequest struct {
	Amount        json.Number `json:"amount"`
	ExpenseDate   string      `json:"expense_date"`
	CategoryID    int64       `json:"category_id"`
	SubCategoryID int64       `json:"sub_category_id"`
	Description   string      `json:"description"`
	ItemName      string      `json:"item_name"`
	Notes         string      `json:"notes"`
	Priority      string      `json:"priority"`
	PaymentType   string      `json:"payment_type"`
	IsEMI         bool        `json:"is_emi"`
	IsVacation    bool        `json:"is_vacation"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		LocalID:     e.LocalID,
		Amount:      e.Amount.Units(),
		ExpenseDate: e.Date.ISO(),
		CategoryID:  e.CategoryID,
		Description: e.Description,
		ItemName:    e.ItemName,
		Notes:       e.Notes,
		Priority:    string(e.Priority),
		PaymentType: string(e.PaymentType),
		IsEMI:       e.IsEMI,
		IsVacation:  e.IsVacation,
		Synced:      e.Synced,
	}
	if e.ServerID != 0 {
		id := e.ServerID
		resp.ID = &id
	}
	if e.SubCategoryID != 0 {
		sid := e.SubCategoryID
		resp.SubCategoryID = &sid
	}
	return resp
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	categories := s.reference.ListCategories(r.Context())
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{
			ID: c.ID, Code: c.Code, Description: c.Description,
			IsActive: c.IsActive, SortOrder: c.SortOrder,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubCategories(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	categoryID, _ := strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	subCategories := s.reference.ListSubCategories(r.Context(), categoryID)
	out := make([]subCategoryResponse, 0, len(subCategories))
	for _, sc := range subCategories {
		out = append(out, subCategoryResponse{
			ID: sc.ID, CategoryID: sc.CategoryID, Code: sc.Code,
			Description: sc.Description, IsActive: sc.IsActive, SortOrder: sc.SortOrder,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		expenses := s.expenses.ListRecent(r.Context(), limit)
		out := make([]expenseResponse, 0, len(expenses))
		for _, e := range expenses {
			out = append(out, toExpenseResponse(e))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req createExpenseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cents, err := core.ParseDecimalToCents(req.Amount.String())
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid amount")
			return
		}
		date, err := core.ParseDate(req.ExpenseDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid expense_date")
			return
		}

		localID, err := s.expenses.AddExpense(r.Context(), core.Expense{
			Amount:        core.Money{Cents: cents},
			Date:          date,
			CategoryID:    req.CategoryID,
			SubCategoryID: req.SubCategoryID,
			Description:   req.Description,
			ItemName:      req.ItemName,
			Notes:         req.Notes,
			Priority:      core.Priority(req.Priority),
			PaymentType:   core.PaymentType(req.PaymentType),
			IsEMI:         req.IsEMI,
			IsVacation:    req.IsVacation,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"local_id": localID})

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/expenses/")
	localID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || localID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), localID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonthTotal(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	total := s.expenses.MonthToDateTotal(r.Context())
	writeJSON(w, http.StatusOK, map[string]float64{"total": total.Units()})
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.sync.Bootstrap(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	pushed, err := s.sync.PushChanges(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pushed": pushed})
}

func (s *Server) handleSyncCategories(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.sync.SyncCategories(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncSubcategories(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.sync.SyncSubcategories(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	lastSync, err := s.sync.LastSyncTime()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"last_sync_time": lastSync})
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	breakdown, err := s.analytics.CategoryBreakdown(r.Context(), queryPeriod(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type entry struct {
		Category   string  `json:"category"`
		Amount     float64 `json:"amount"`
		Percentage int     `json:"percentage"`
	}
	out := make([]entry, 0, len(breakdown))
	for _, b := range breakdown {
		out = append(out, entry{Category: b.Category, Amount: b.Amount.Units(), Percentage: b.Percentage})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeeklySpending(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	weekly, err := s.analytics.WeeklySpending(r.Context(), queryPeriod(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type entry struct {
		Week   int     `json:"week"`
		Amount float64 `json:"amount"`
	}
	out := make([]entry, 0, len(weekly))
	for _, wk := range weekly {
		out = append(out, entry{Week: wk.Week, Amount: wk.Amount.Units()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := s.analytics.Summary(r.Context(), queryPeriod(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":           summary.Total.Units(),
		"count":           summary.Count,
		"average_per_day": summary.AveragePerDay.Units(),
	})
}

func queryPeriod(r *http.Request) core.Period {
	p := r.URL.Query().Get("period")
	if p == "" {
		return core.PeriodCurrentMonth
	}
	return core.Period(p)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service-layer failures onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *backend.RequestError

	switch {
	case errors.Is(err, core.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "local store not ready")
	case errors.Is(err, services.ErrSyncInFlight):
		writeError(w, http.StatusConflict, "sync already in flight")
	case errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrInvalidPriority),
		errors.Is(err, core.ErrInvalidPaymentType),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidPeriod):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &reqErr):
		slog.ErrorContext(r.Context(), "Backend request failed", "error", err,
			"path", r.URL.Path)
		writeError(w, http.StatusBadGateway, "backend request failed")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err,
			"path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
