package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"rentledger/internal/audit"
	"rentledger/internal/auth"
	"rentledger/internal/observability/metrics"
	"rentledger/internal/proration"
	"rentledger/internal/settlement/application"
	settlement "rentledger/internal/settlement/domain"
	"rentledger/internal/settlement/interfaces"
)

const dateLayout = "2006-01-02"

// Handler provides settlement HTTP endpoints under /api/v1/settlements.
type Handler struct {
	calculator      *application.Calculator
	finalizer       *application.Finalizer
	repo            settlement.Repository
	ledger          settlement.LedgerReader
	propertyChecker auth.PropertyOwnerChecker
	auditLogger     audit.Logger
	logger          *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(
	calculator *application.Calculator,
	finalizer *application.Finalizer,
	repo settlement.Repository,
	ledger settlement.LedgerReader,
	propertyChecker auth.PropertyOwnerChecker,
	auditLogger audit.Logger,
	logger *log.Logger,
) (*Handler, error) {
	if calculator == nil {
		return nil, errors.New("settlement handler: nil calculator")
	}
	if finalizer == nil {
		return nil, errors.New("settlement handler: nil finalizer")
	}
	if repo == nil {
		return nil, errors.New("settlement handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		calculator:      calculator,
		finalizer:       finalizer,
		repo:            repo,
		ledger:          ledger,
		propertyChecker: propertyChecker,
		auditLogger:     auditLogger,
		logger:          logger,
	}, nil
}

// ServeHTTP routes /api/v1/settlements requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/settlements")
	path = strings.Trim(path, "/")

	switch {
	case path == "calculate" && r.Method == http.MethodPost:
		h.handleCalculate(w, r)
	case path == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case strings.HasSuffix(path, "/finalize") && r.Method == http.MethodPost:
		h.handleFinalize(w, r, strings.TrimSuffix(path, "/finalize"))
	case strings.HasSuffix(path, "/void") && r.Method == http.MethodPost:
		h.handleVoid(w, r, strings.TrimSuffix(path, "/void"))
	case strings.HasSuffix(path, "/export") && r.Method == http.MethodGet:
		h.handleExport(w, r, strings.TrimSuffix(path, "/export"))
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodGet:
		h.handleGet(w, r, path)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type calculateRequest struct {
	PropertyID    string `json:"property_id"`
	Title         string `json:"title"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	Approach      string `json:"approach"`
	SplitMethod   string `json:"split_method"`
	AbsorbGapDays *bool  `json:"absorb_gap_days"`
	Save          bool   `json:"save"`
}

type calculateResponse struct {
	Settlement settlementDTO `json:"settlement"`
	Warnings   []string      `json:"warnings"`
	Saved      bool          `json:"saved"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	periodStart, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		http.Error(w, "period_start must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	periodEnd, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		http.Error(w, "period_end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ownerID := auth.OwnerIDFromContext(r.Context())
	if err := h.ensureProperty(r, ownerID, req.PropertyID); err != nil {
		respondOwnerError(w, err)
		return
	}

	result, err := h.calculator.Calculate(r.Context(), application.CalculateInput{
		PropertyID:    req.PropertyID,
		OwnerID:       ownerID,
		Title:         req.Title,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Approach:      settlement.Approach(req.Approach),
		SplitMethod:   proration.SplitMethod(req.SplitMethod),
		AbsorbGapDays: req.AbsorbGapDays,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	saved := false
	if req.Save {
		if err := h.finalizer.SaveDraft(r.Context(), result.Settlement); err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		saved = true
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(calculateResponse{
		Settlement: toSettlementDTO(result.Settlement),
		Warnings:   result.Warnings,
		Saved:      saved,
	})

	h.logAudit(r, ownerID, audit.ActionSettlementCalculate, result.Settlement.ID, req.PropertyID, map[string]any{
		"period_start": req.PeriodStart,
		"period_end":   req.PeriodEnd,
		"total_amount": result.Settlement.TotalAmount.StringFixed(2),
		"warnings":     len(result.Warnings),
		"saved":        saved,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	propertyID := r.URL.Query().Get("property_id")
	if propertyID == "" {
		http.Error(w, "property_id is required", http.StatusBadRequest)
		return
	}
	ownerID := auth.OwnerIDFromContext(r.Context())
	if err := h.ensureProperty(r, ownerID, propertyID); err != nil {
		respondOwnerError(w, err)
		return
	}

	list, err := h.repo.ListByProperty(r.Context(), propertyID, ownerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	dtos := make([]settlementDTO, 0, len(list))
	for i := range list {
		dtos = append(dtos, toSettlementDTO(&list[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dtos)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	ownerID := auth.OwnerIDFromContext(r.Context())
	stl, err := h.repo.GetByID(r.Context(), id, ownerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if stl == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toSettlementDTO(stl))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request, id string) {
	ownerID := auth.OwnerIDFromContext(r.Context())
	stl, err := h.finalizer.Finalize(r.Context(), id, ownerID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toSettlementDTO(stl))

	h.logAudit(r, ownerID, audit.ActionSettlementFinalize, stl.ID, stl.PropertyID, map[string]any{
		"total_amount": stl.TotalAmount.StringFixed(2),
		"shares":       len(stl.Shares),
	})
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request, id string) {
	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	ownerID := auth.OwnerIDFromContext(r.Context())
	stl, err := h.finalizer.Void(r.Context(), id, ownerID, req.Reason)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toSettlementDTO(stl))

	h.logAudit(r, ownerID, audit.ActionSettlementVoid, stl.ID, stl.PropertyID, map[string]any{
		"reason": req.Reason,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	start := time.Now()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}

	ownerID := auth.OwnerIDFromContext(r.Context())
	stl, err := h.repo.GetByID(r.Context(), id, ownerID)
	if err != nil {
		metrics.ObserveSettlementExport(format, metrics.ResultError, time.Since(start))
		h.serverError(w, r, err)
		return
	}
	if stl == nil {
		metrics.ObserveSettlementExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var payload []byte
	var contentType, fileName string
	switch format {
	case "pdf":
		payload, err = interfaces.BuildSettlementPDF(stl)
		contentType = "application/pdf"
		fileName = stl.ID + ".pdf"
	case "xlsx":
		payload, err = interfaces.BuildSettlementXLSX(stl)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		fileName = stl.ID + ".xlsx"
	default:
		metrics.ObserveSettlementExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveSettlementExport(format, metrics.ResultError, time.Since(start))
		h.serverError(w, r, err)
		return
	}

	metrics.ObserveSettlementExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = w.Write(payload)
}

func (h *Handler) ensureProperty(r *http.Request, ownerID, propertyID string) error {
	if h.propertyChecker == nil || ownerID == "" || propertyID == "" {
		return nil
	}
	return h.propertyChecker.EnsurePropertyOwner(r.Context(), ownerID, propertyID)
}

func (h *Handler) logAudit(r *http.Request, ownerID, action, settlementID, propertyID string, meta map[string]any) {
	if h.auditLogger == nil || ownerID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		OwnerID:      ownerID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "settlement",
		ResourceID:   settlementID,
		PropertyID:   propertyID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func respondOwnerError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, auth.ErrOwnerMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "owner check failed", http.StatusInternalServerError)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, settlement.ErrSettlementNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, settlement.ErrNoShares),
		errors.Is(err, settlement.ErrEmptyVoidReason),
		errors.Is(err, settlement.ErrInvalidPeriod),
		errors.Is(err, settlement.ErrEmptyPropertyID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.serverError(w, r, err)
	}
}

// serverError logs the cause and answers with a generic body; repository and
// SQL details never reach clients.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Printf("http %s %s: %v", r.Method, r.URL.Path, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
