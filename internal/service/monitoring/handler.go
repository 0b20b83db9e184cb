package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Handler отдаёт мониторинговый read API поверх Service.
type Handler struct {
	service *Service
	logger  *log.Entry
}

// NewHandler создаёт HTTP-обработчик мониторинга.
func NewHandler(service *Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{
		service: service,
		logger:  logger.WithField("component", "monitoring_api"),
	}
}

// Register навешивает маршруты read API на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sagas", h.listSagas)
	mux.HandleFunc("GET /v1/sagas/stats", h.sagaStats)
	mux.HandleFunc("GET /v1/sagas/{correlationID}", h.sagaDetails)
	mux.HandleFunc("GET /v1/orders/{orderID}/sagas", h.sagasByOrder)
}

type sagaSummaryView struct {
	SagaType      domain.SagaType `json:"saga_type"`
	CorrelationID string          `json:"correlation_id"`
	OrderID       string          `json:"order_id"`
	CurrentState  string          `json:"current_state"`
	FailureReason string          `json:"failure_reason,omitempty"`
	FailedStep    string          `json:"failed_step,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) listSagas(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSagaFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	summaries, err := h.service.ListSummaries(filter)
	if err != nil {
		if errors.Is(err, ErrUnknownSagaType) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.serverError(w, "list sagas", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"sagas": toSummaryViews(summaries),
	})
}

func (h *Handler) sagaDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Details(r.PathValue("correlationID"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSagaNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, domain.ErrCorrelationIDRequired):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.serverError(w, "saga details", err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, details)
}

func (h *Handler) sagasByOrder(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListByOrder(r.PathValue("orderID"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderIDRequired) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.serverError(w, "list sagas by order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"sagas": toSummaryViews(summaries),
	})
}

func (h *Handler) sagaStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats()
	if err != nil {
		h.serverError(w, "saga stats", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
	})
}

func parseSagaFilter(r *http.Request) (domain.SagaFilter, error) {
	query := r.URL.Query()
	filter := domain.SagaFilter{
		SagaType:     domain.SagaType(query.Get("type")),
		CurrentState: query.Get("state"),
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.SagaFilter{}, errors.New("invalid 'from' timestamp, expected RFC3339")
		}
		filter.StartedFrom = from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.SagaFilter{}, errors.New("invalid 'to' timestamp, expected RFC3339")
		}
		filter.StartedTo = to
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.SagaFilter{}, errors.New("invalid 'limit', expected non-negative integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}

func toSummaryViews(summaries []domain.SagaSummary) []sagaSummaryView {
	views := make([]sagaSummaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, sagaSummaryView{
			SagaType:      s.SagaType,
			CorrelationID: s.CorrelationID,
			OrderID:       s.OrderID,
			CurrentState:  s.CurrentState,
			FailureReason: s.FailureReason,
			FailedStep:    s.FailedStep,
			StartedAt:     s.StartedAt,
			CompletedAt:   s.CompletedAt,
		})
	}
	return views
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.WithError(err).WithField("op", op).Error("Monitoring query failed")
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
