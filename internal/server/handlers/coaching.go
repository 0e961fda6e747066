package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/server/storage"
	"github.com/iudanet/coachsync/pkg/api"
)

const maxBodySize = 1 << 20

// CoachingStorage is the persistence used by CoachingHandler.
type CoachingStorage interface {
	storage.RecordStorage
	storage.DeliveryStorage
}

// CoachingHandler serves the coaching resources. Every mutation carrying a
// Correlation-Id is applied at most once: a redelivery gets 409 Conflict with
// the body of the first answer.
type CoachingHandler struct {
	logger  *slog.Logger
	storage CoachingStorage
	clock   clock.Clock
}

// NewCoachingHandler создает handler тренировочных ресурсов
func NewCoachingHandler(logger *slog.Logger, s CoachingStorage, clk clock.Clock) *CoachingHandler {
	return &CoachingHandler{
		logger:  logger,
		storage: s,
		clock:   clk,
	}
}

// delivery описывает один мутирующий запрос
type delivery struct {
	userID        string
	correlationID string
}

// CreateSchedule обрабатывает POST /api/v1/schedules
func (h *CoachingHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	d, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req api.ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MemberID == "" || req.Title == "" || req.StartsAt.IsZero() || req.Duration < 0 {
		sendError(h.logger, w, "member_id, title and starts_at are required", http.StatusBadRequest)
		return
	}

	id := newServerID()
	h.create(w, r, d, models.TableSchedules, "", req.ClientID, models.Schedule{
		StartsAt: req.StartsAt,
		ID:       id,
		MemberID: req.MemberID,
		Title:    req.Title,
		Notes:    req.Notes,
		Status:   models.ScheduleStatusPlanned,
		Duration: req.Duration,
	}, id)
}

// ListSchedules обрабатывает GET /api/v1/schedules
func (h *CoachingHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := h.storage.ListRecords(r.Context(), userID, models.TableSchedules)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list schedules", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	schedules := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		schedules = append(schedules, rec.Data)
	}
	sendJSON(h.logger, w, schedules, http.StatusOK)
}

// UpdateSchedule обрабатывает PATCH /api/v1/schedules/{id}
func (h *CoachingHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	d, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req api.ScheduleStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status := models.ScheduleStatus(req.Status)
	if !status.Valid() {
		sendError(h.logger, w, fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	rec, err := h.storage.GetRecord(ctx, d.userID, models.TableSchedules, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, d, err)
		return
	}

	var schedule models.Schedule
	if err := json.Unmarshal(rec.Data, &schedule); err != nil {
		h.fail(w, r, d, fmt.Errorf("failed to decode stored schedule: %w", err))
		return
	}
	schedule.Status = status

	body, err := json.Marshal(schedule)
	if err != nil {
		h.fail(w, r, d, err)
		return
	}
	rec.Data = body
	rec.UpdatedAt = h.clock.Now()

	if err := h.storage.UpdateRecord(ctx, rec, h.result(d, http.StatusOK, body)); err != nil {
		h.fail(w, r, d, err)
		return
	}
	sendRaw(h.logger, w, body, http.StatusOK)
}

// AddPlannedExercise обрабатывает POST /api/v1/schedules/{id}/exercises
func (h *CoachingHandler) AddPlannedExercise(w http.ResponseWriter, r *http.Request) {
	d, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req api.PlannedExerciseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Sets < 0 || req.Reps < 0 {
		sendError(h.logger, w, "name is required", http.StatusBadRequest)
		return
	}

	scheduleID := r.PathValue("id")
	id := newServerID()
	h.create(w, r, d, models.TablePlannedExercises, scheduleID, req.ClientID, models.PlannedExercise{
		ID:         id,
		ScheduleID: scheduleID,
		ExerciseID: req.ExerciseID,
		Name:       req.Name,
		Sets:       req.Sets,
		Reps:       req.Reps,
		Weight:     req.Weight,
		Order:      req.Order,
	}, id)
}

// LogSet обрабатывает POST /api/v1/exercises/{id}/sets
func (h *CoachingHandler) LogSet(w http.ResponseWriter, r *http.Request) {
	d, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req api.SetLogRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Reps < 0 || req.Weight < 0 || req.LoggedAt.IsZero() {
		sendError(h.logger, w, "logged_at is required and values must not be negative", http.StatusBadRequest)
		return
	}

	plannedID := r.PathValue("id")
	id := newServerID()
	h.create(w, r, d, models.TableSetLogs, plannedID, req.ClientID, models.SetLog{
		LoggedAt:          req.LoggedAt,
		ID:                id,
		PlannedExerciseID: plannedID,
		Reps:              req.Reps,
		Weight:            req.Weight,
		RPE:               req.RPE,
	}, id)
}

// Delete returns a handler for DELETE of a record of table; the record id is
// the "id" path value. Children are removed too.
func (h *CoachingHandler) Delete(table models.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := h.begin(w, r)
		if !ok {
			return
		}

		id := r.PathValue("id")
		if err := h.storage.DeleteRecord(r.Context(), d.userID, table, id, h.result(d, http.StatusNoContent, nil)); err != nil {
			h.fail(w, r, d, err)
			return
		}

		h.logger.InfoContext(r.Context(), "record deleted",
			slog.String("table", string(table)),
			slog.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// begin проверяет пользователя и отвечает на повторную доставку
func (h *CoachingHandler) begin(w http.ResponseWriter, r *http.Request) (delivery, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return delivery{}, false
	}

	d := delivery{userID: userID, correlationID: r.Header.Get(models.CorrelationHeader)}
	if d.correlationID == "" {
		return d, true
	}
	return d, !h.replay(w, r, d)
}

// replay отвечает 409 с телом первой доставки, если она была
func (h *CoachingHandler) replay(w http.ResponseWriter, r *http.Request, d delivery) bool {
	prev, err := h.storage.GetDelivery(r.Context(), d.userID, d.correlationID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to look up delivery", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return true
	}
	if prev == nil {
		return false
	}

	h.logger.InfoContext(r.Context(), "redelivery answered from stored result",
		slog.String("correlation_id", d.correlationID),
		slog.Int("original_status", prev.Status))
	sendRaw(h.logger, w, prev.Body, http.StatusConflict)
	return true
}

func (h *CoachingHandler) create(
	w http.ResponseWriter,
	r *http.Request,
	d delivery,
	table models.Table,
	parentID, clientID string,
	entity any,
	id string,
) {
	data, err := json.Marshal(entity)
	if err != nil {
		h.fail(w, r, d, err)
		return
	}
	body, err := json.Marshal(api.CreatedResponse{ID: id})
	if err != nil {
		h.fail(w, r, d, err)
		return
	}

	now := h.clock.Now()
	rec := &models.Record{
		CreatedAt: now,
		UpdatedAt: now,
		ID:        id,
		UserID:    d.userID,
		Table:     table,
		ParentID:  parentID,
		ClientID:  clientID,
		Data:      data,
	}
	if err := h.storage.CreateRecord(r.Context(), rec, h.result(d, http.StatusCreated, body)); err != nil {
		h.fail(w, r, d, err)
		return
	}

	h.logger.InfoContext(r.Context(), "record created",
		slog.String("table", string(table)),
		slog.String("id", id),
		slog.String("client_id", clientID))
	sendRaw(h.logger, w, body, http.StatusCreated)
}

func (h *CoachingHandler) result(d delivery, status int, body []byte) *models.DeliveryResult {
	if d.correlationID == "" {
		return nil
	}
	return &models.DeliveryResult{
		CreatedAt:     h.clock.Now(),
		CorrelationID: d.correlationID,
		UserID:        d.userID,
		Body:          body,
		Status:        status,
	}
}

func (h *CoachingHandler) fail(w http.ResponseWriter, r *http.Request, d delivery, err error) {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		sendError(h.logger, w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrDeliveryExists):
		// параллельная доставка того же запроса успела раньше
		if !h.replay(w, r, d) {
			sendError(h.logger, w, "conflict", http.StatusConflict)
		}
	default:
		h.logger.ErrorContext(r.Context(), "request failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *CoachingHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func newServerID() string {
	return "srv_" + uuid.NewString()
}
