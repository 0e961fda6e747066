package sqlite

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/server/storage"
)

func newRecord(userID string, table models.Table, id, parentID string) *models.Record {
	now := time.Now().UTC()
	return &models.Record{
		ID:        id,
		UserID:    userID,
		Table:     table,
		ParentID:  parentID,
		ClientID:  "local_" + id,
		Data:      json.RawMessage(`{"id":"` + id + `"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func delivery(userID, correlationID string, status int, body string) *models.DeliveryResult {
	return &models.DeliveryResult{
		UserID:        userID,
		CorrelationID: correlationID,
		Status:        status,
		Body:          []byte(body),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRecordStorage_CreateStoresDelivery(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	user := createTestUser(t, s, "coach1")

	rec := newRecord(user.ID, models.TableSchedules, "srv_1", "")
	require.NoError(t, s.CreateRecord(ctx, rec, delivery(user.ID, "corr-1", http.StatusCreated, `{"id":"srv_1"}`)))

	got, err := s.GetRecord(ctx, user.ID, models.TableSchedules, "srv_1")
	require.NoError(t, err)
	assert.Equal(t, "local_srv_1", got.ClientID)
	assert.Empty(t, got.ParentID)
	assert.JSONEq(t, `{"id":"srv_1"}`, string(got.Data))

	d, err := s.GetDelivery(ctx, user.ID, "corr-1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, http.StatusCreated, d.Status)
	assert.Equal(t, `{"id":"srv_1"}`, string(d.Body))

	missing, err := s.GetDelivery(ctx, user.ID, "corr-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordStorage_DuplicateCorrelationRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	user := createTestUser(t, s, "coach1")

	require.NoError(t, s.CreateRecord(ctx,
		newRecord(user.ID, models.TableSchedules, "srv_1", ""),
		delivery(user.ID, "corr-1", http.StatusCreated, `{}`)))

	err := s.CreateRecord(ctx,
		newRecord(user.ID, models.TableSchedules, "srv_2", ""),
		delivery(user.ID, "corr-1", http.StatusCreated, `{}`))
	assert.ErrorIs(t, err, storage.ErrDeliveryExists)

	_, err = s.GetRecord(ctx, user.ID, models.TableSchedules, "srv_2")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestRecordStorage_ParentMustExist(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	owner := createTestUser(t, s, "coach1")
	other := createTestUser(t, s, "coach2")

	require.NoError(t, s.CreateRecord(ctx, newRecord(owner.ID, models.TableSchedules, "srv_s", ""), nil))

	err := s.CreateRecord(ctx, newRecord(owner.ID, models.TablePlannedExercises, "srv_pe", "missing"), nil)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	// чужой родитель тоже не найден
	err = s.CreateRecord(ctx, newRecord(other.ID, models.TablePlannedExercises, "srv_pe", "srv_s"), nil)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	require.NoError(t, s.CreateRecord(ctx, newRecord(owner.ID, models.TablePlannedExercises, "srv_pe", "srv_s"), nil))
}

func TestRecordStorage_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	user := createTestUser(t, s, "coach1")

	rec := newRecord(user.ID, models.TableSchedules, "srv_1", "")
	require.NoError(t, s.CreateRecord(ctx, rec, nil))
	require.NoError(t, s.CreateRecord(ctx, newRecord(user.ID, models.TableSchedules, "srv_2", ""), nil))

	rec.Data = json.RawMessage(`{"id":"srv_1","status":"completed"}`)
	rec.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateRecord(ctx, rec, delivery(user.ID, "corr-u", http.StatusNoContent, "")))

	records, err := s.ListRecords(ctx, user.ID, models.TableSchedules)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"id":"srv_1","status":"completed"}`, string(records[0].Data))

	missing := newRecord(user.ID, models.TableSchedules, "srv_x", "")
	assert.ErrorIs(t, s.UpdateRecord(ctx, missing, nil), storage.ErrRecordNotFound)
}

func TestRecordStorage_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	user := createTestUser(t, s, "coach1")

	require.NoError(t, s.CreateRecord(ctx, newRecord(user.ID, models.TableSchedules, "srv_s", ""), nil))
	require.NoError(t, s.CreateRecord(ctx, newRecord(user.ID, models.TablePlannedExercises, "srv_pe", "srv_s"), nil))
	require.NoError(t, s.CreateRecord(ctx, newRecord(user.ID, models.TableSetLogs, "srv_set", "srv_pe"), nil))

	require.NoError(t, s.DeleteRecord(ctx, user.ID, models.TableSchedules, "srv_s",
		delivery(user.ID, "corr-d", http.StatusNoContent, "")))

	for table, id := range map[models.Table]string{
		models.TableSchedules:        "srv_s",
		models.TablePlannedExercises: "srv_pe",
		models.TableSetLogs:          "srv_set",
	} {
		_, err := s.GetRecord(ctx, user.ID, table, id)
		assert.ErrorIs(t, err, storage.ErrRecordNotFound, id)
	}

	// повторное удаление отсутствующей записи не ошибка
	assert.NoError(t, s.DeleteRecord(ctx, user.ID, models.TableSchedules, "srv_s", nil))
}
