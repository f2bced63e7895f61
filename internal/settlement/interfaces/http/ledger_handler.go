package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"rentledger/internal/auth"
	settlement "rentledger/internal/settlement/domain"
)

// LedgerHandler serves tenant ledger reads under /api/v1/ledger.
type LedgerHandler struct {
	ledger          settlement.LedgerReader
	propertyChecker auth.PropertyOwnerChecker
	logger          *log.Logger
}

// NewLedgerHandler constructs a ledger handler.
func NewLedgerHandler(ledger settlement.LedgerReader, propertyChecker auth.PropertyOwnerChecker, logger *log.Logger) (*LedgerHandler, error) {
	if ledger == nil {
		return nil, errors.New("ledger handler: nil reader")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerHandler{ledger: ledger, propertyChecker: propertyChecker, logger: logger}, nil
}

type ledgerEntryDTO struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	PropertyID   string    `json:"property_id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	SettlementID string    `json:"settlement_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/ledger.
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	propertyID := r.URL.Query().Get("property_id")
	if tenantID == "" || propertyID == "" {
		http.Error(w, "tenant_id and property_id are required", http.StatusBadRequest)
		return
	}

	ownerID := auth.OwnerIDFromContext(r.Context())
	if h.propertyChecker != nil && ownerID != "" {
		if err := h.propertyChecker.EnsurePropertyOwner(r.Context(), ownerID, propertyID); err != nil {
			respondOwnerError(w, err)
			return
		}
	}

	entries, err := h.ledger.ListEntries(r.Context(), tenantID, propertyID)
	if err != nil {
		h.logger.Printf("http %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	dtos := make([]ledgerEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, ledgerEntryDTO{
			ID:           entry.ID,
			TenantID:     entry.TenantID,
			PropertyID:   entry.PropertyID,
			Type:         string(entry.Type),
			Amount:       entry.Amount.StringFixed(2),
			BalanceAfter: entry.BalanceAfter.StringFixed(2),
			SettlementID: entry.SettlementID,
			Description:  entry.Description,
			CreatedAt:    entry.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dtos)
}
