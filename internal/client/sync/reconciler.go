package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/coachsync/internal/client/queue"
	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/crypto"
	"github.com/iudanet/coachsync/internal/models"
)

// Promotion is the result of reconciling one successful creation.
type Promotion struct {
	LocalID      string
	ServerID     string
	Rewritten    int  // другие элементы очереди, ссылавшиеся на LocalID
	Dropped      int  // переписанные элементы, совпавшие по хешу с уже существующими
	Cancelled    bool // создание было отменено во время запроса
	Compensated  bool // для отмененного создания поставлен DELETE
	Reparented   int
	EntityRekeys int
}

// Reconciler promotes a locally minted identifier to the server identifier
// everywhere it is referenced.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Promote runs inside tx, so concurrent queue readers see either the state
// before or after the whole promotion. item is the successfully delivered
// creation; it is removed from the queue as the last step. compensation is
// enqueued instead if item was cancelled while its request was in flight.
func (r *Reconciler) Promote(
	tx storage.Tx,
	item *models.QueueItem,
	create models.EntityCreate,
	serverID string,
	compensation *models.QueueItem,
) (*Promotion, error) {
	p := &Promotion{LocalID: create.LocalID, ServerID: serverID}

	if _, err := tx.GetItem(item.ID); err != nil {
		if !errors.Is(err, storage.ErrItemNotFound) {
			return nil, err
		}
		// Создание отменили, пока запрос был в полете: сервер уже создал
		// сущность, поэтому удаляем ее явно.
		p.Cancelled = true
		if compensation != nil {
			if _, err := queue.Insert(tx, compensation); err != nil {
				return nil, fmt.Errorf("failed to enqueue compensating delete: %w", err)
			}
			p.Compensated = true
		}
		return p, nil
	}

	if err := r.rekeyEntity(tx, create.Table, create.LocalID, serverID, p); err != nil {
		return nil, err
	}
	if err := r.reparentChildren(tx, create.LocalID, serverID, p); err != nil {
		return nil, err
	}
	if err := r.rewriteQueue(tx, item.ID, create.LocalID, serverID, p); err != nil {
		return nil, err
	}

	if err := tx.DeleteItem(item.ID); err != nil {
		return nil, fmt.Errorf("failed to remove finalized item: %w", err)
	}
	return p, nil
}

func (r *Reconciler) rekeyEntity(tx storage.Tx, table models.Table, localID, serverID string, p *Promotion) error {
	entity, err := tx.GetEntity(table, localID)
	if errors.Is(err, storage.ErrEntityNotFound) {
		r.logger.Warn("promoted entity not in local store",
			"table", string(table),
			"local_id", localID,
			"server_id", serverID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.DeleteEntity(table, localID); err != nil {
		return err
	}
	entity.ReplaceIdentifier(localID, serverID)
	if err := tx.PutEntity(entity); err != nil {
		return fmt.Errorf("failed to re-key entity: %w", err)
	}
	p.EntityRekeys++
	return nil
}

func (r *Reconciler) reparentChildren(tx storage.Tx, localID, serverID string, p *Promotion) error {
	for _, table := range models.Tables {
		children, err := tx.QueryEntities(table, models.ByParent(localID))
		if err != nil {
			return err
		}
		for _, child := range children {
			child.ReplaceIdentifier(localID, serverID)
			if err := tx.PutEntity(child); err != nil {
				return fmt.Errorf("failed to re-parent %s: %w", child.ID, err)
			}
			p.Reparented++
		}
	}
	return nil
}

func (r *Reconciler) rewriteQueue(tx storage.Tx, finalizedID, localID, serverID string, p *Promotion) error {
	items, err := tx.ListItems()
	if err != nil {
		return err
	}

	for _, other := range items {
		if other.ID == finalizedID {
			continue
		}
		if !other.ReplaceIdentifier(localID, serverID) {
			continue
		}
		other.PayloadHash = crypto.HashPayload(other.Method, other.URL, other.Body)

		err := tx.UpdateItem(other)
		if errors.Is(err, storage.ErrDuplicateHash) {
			// тот же запрос уже стоит в очереди под серверным ID
			if err := tx.DeleteItem(other.ID); err != nil {
				return err
			}
			p.Dropped++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to rewrite item %s: %w", other.ID, err)
		}
		p.Rewritten++
	}
	return nil
}

// serverIDFromBody extracts {"id": "..."} from a creation response.
func serverIDFromBody(body []byte) string {
	var created struct {
		ID string `json:"id"`
	}
	if len(body) == 0 || json.Unmarshal(body, &created) != nil {
		return ""
	}
	return created.ID
}

// compensatingDelete builds DELETE <create-url>/<serverID> for a cancelled creation.
func compensatingDelete(item *models.QueueItem, create models.EntityCreate, serverID string, now time.Time) (*models.QueueItem, error) {
	u, err := url.Parse(item.URL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + serverID
	u.RawPath = ""
	u.RawQuery = ""

	return queue.NewItem(
		queue.Action{Method: "DELETE", URL: u.String(), Headers: item.Headers},
		models.EntityDelete{Table: create.Table, ID: serverID},
		now,
	)
}
