package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"rentledger/internal/audit"
	"rentledger/internal/auth"
	"rentledger/internal/metering/application"
	metering "rentledger/internal/metering/domain"

	"github.com/shopspring/decimal"
)

// Handler provides meter HTTP endpoints under /api/v1/meters.
type Handler struct {
	service     *application.ExchangeService
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.ExchangeService, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("metering handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP routes /api/v1/meters/{id}/exchange and
// /api/v1/meters/{id}/readings.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/meters"), "/")

	switch {
	case strings.HasSuffix(path, "/exchange") && r.Method == http.MethodPost:
		h.handleExchange(w, r, strings.TrimSuffix(path, "/exchange"))
	case strings.HasSuffix(path, "/readings") && r.Method == http.MethodGet:
		h.handleReadings(w, r, strings.TrimSuffix(path, "/readings"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type exchangeRequest struct {
	FinalReading      string `json:"final_reading"`
	NewNumber         string `json:"new_number"`
	NewSerialNumber   string `json:"new_serial_number"`
	NewInitialReading string `json:"new_initial_reading"`
	Notes             string `json:"notes"`
}

type exchangeResponse struct {
	OldMeterID     string `json:"old_meter_id"`
	NewMeterID     string `json:"new_meter_id"`
	FinalReading   string `json:"final_reading"`
	InitialReading string `json:"initial_reading"`
	ArchivedAt     string `json:"archived_at"`
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request, meterID string) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	finalReading, err := decimal.NewFromString(req.FinalReading)
	if err != nil {
		http.Error(w, "final_reading must be a decimal", http.StatusBadRequest)
		return
	}
	initialReading := decimal.Zero
	if req.NewInitialReading != "" {
		initialReading, err = decimal.NewFromString(req.NewInitialReading)
		if err != nil {
			http.Error(w, "new_initial_reading must be a decimal", http.StatusBadRequest)
			return
		}
	}

	ownerID := auth.OwnerIDFromContext(r.Context())
	exchange, err := h.service.Exchange(r.Context(), application.ExchangeInput{
		OldMeterID:        meterID,
		FinalReading:      finalReading,
		NewNumber:         req.NewNumber,
		NewSerialNumber:   req.NewSerialNumber,
		NewInitialReading: initialReading,
		Notes:             req.Notes,
	}, ownerID)
	if err != nil {
		h.respondMeterError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(exchangeResponse{
		OldMeterID:     exchange.OldMeter.ID,
		NewMeterID:     exchange.NewMeter.ID,
		FinalReading:   exchange.FinalReading.Value.String(),
		InitialReading: exchange.InitialReading.Value.String(),
		ArchivedAt:     exchange.OldMeter.ArchiveDate.Format(time.RFC3339),
	})

	h.logAudit(r, ownerID, exchange)
}

type readingDTO struct {
	ID          string `json:"id"`
	MeterID     string `json:"meter_id"`
	Value       string `json:"value"`
	ReadingDate string `json:"reading_date"`
	Type        string `json:"type"`
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request, meterID string) {
	ownerID := auth.OwnerIDFromContext(r.Context())
	readings, err := h.service.ReadingHistory(r.Context(), meterID, ownerID)
	if err != nil {
		h.respondMeterError(w, r, err)
		return
	}

	dtos := make([]readingDTO, 0, len(readings))
	for _, reading := range readings {
		dtos = append(dtos, readingDTO{
			ID:          reading.ID,
			MeterID:     reading.MeterID,
			Value:       reading.Value.String(),
			ReadingDate: reading.ReadingDate.Format("2006-01-02"),
			Type:        string(reading.Type),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dtos)
}

func (h *Handler) logAudit(r *http.Request, ownerID string, exchange *metering.Exchange) {
	if h.auditLogger == nil || ownerID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"new_meter_id":  exchange.NewMeter.ID,
		"final_reading": exchange.FinalReading.Value.String(),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		OwnerID:      ownerID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionMeterExchange,
		ResourceType: "meter",
		ResourceID:   exchange.OldMeter.ID,
		PropertyID:   exchange.OldMeter.PropertyID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func (h *Handler) respondMeterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, metering.ErrMeterNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, metering.ErrMeterNotActive),
		errors.Is(err, metering.ErrInvalidReading):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Printf("http %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
