package boltdb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

// boltTx implements storage.Tx on top of a bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

var _ storage.Tx = (*boltTx)(nil)

var errReadOnly = errors.New("write in read-only transaction")

func (t *boltTx) table(table models.Table) (*bbolt.Bucket, error) {
	entities := t.tx.Bucket(bucketEntities)
	if entities == nil {
		return nil, fmt.Errorf("entities bucket not found")
	}
	b := entities.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return b, nil
}

func (t *boltTx) bucket(name []byte) (*bbolt.Bucket, error) {
	b := t.tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}

// GetEntity retrieves an entity by table and id
func (t *boltTx) GetEntity(table models.Table, id string) (*models.Entity, error) {
	b, err := t.table(table)
	if err != nil {
		return nil, err
	}

	data := b.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrEntityNotFound
	}

	entity := &models.Entity{}
	if err := json.Unmarshal(data, entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return entity, nil
}

// PutEntity stores or replaces an entity
func (t *boltTx) PutEntity(entity *models.Entity) error {
	if !t.tx.Writable() {
		return errReadOnly
	}
	if entity.ID == "" {
		return fmt.Errorf("entity id cannot be empty")
	}

	b, err := t.table(entity.Table)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	if err := b.Put([]byte(entity.ID), data); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

// DeleteEntity removes an entity; missing entities are ignored
func (t *boltTx) DeleteEntity(table models.Table, id string) error {
	if !t.tx.Writable() {
		return errReadOnly
	}
	b, err := t.table(table)
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// QueryEntities returns matching entities ordered by SortKey, then ID
func (t *boltTx) QueryEntities(table models.Table, match models.EntityPredicate) ([]*models.Entity, error) {
	b, err := t.table(table)
	if err != nil {
		return nil, err
	}
	if match == nil {
		match = models.All()
	}

	var result []*models.Entity
	err = b.ForEach(func(k, v []byte) error {
		entity := &models.Entity{}
		if err := json.Unmarshal(v, entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity %s: %w", k, err)
		}
		if match(entity) {
			result = append(result, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].SortKey != result[j].SortKey {
			return result[i].SortKey < result[j].SortKey
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// orderKey: 8 байт timestamp (unix nanos) + 8 байт seq, big endian
func orderKey(item *models.QueueItem) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(item.Timestamp.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], item.Seq)
	return key
}

func (t *boltTx) loadItem(queue *bbolt.Bucket, id []byte) (*models.QueueItem, error) {
	data := queue.Get(id)
	if data == nil {
		return nil, storage.ErrItemNotFound
	}
	item := &models.QueueItem{}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}
	return item, nil
}

func (t *boltTx) putItem(queue *bbolt.Bucket, item *models.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := queue.Put([]byte(item.ID), data); err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}
	return nil
}

type queueBuckets struct {
	items, hash, order *bbolt.Bucket
}

func (t *boltTx) queueBuckets() (*queueBuckets, error) {
	items, err := t.bucket(bucketQueue)
	if err != nil {
		return nil, err
	}
	hash, err := t.bucket(bucketQueueHash)
	if err != nil {
		return nil, err
	}
	order, err := t.bucket(bucketQueueOrder)
	if err != nil {
		return nil, err
	}
	return &queueBuckets{items: items, hash: hash, order: order}, nil
}

// InsertItem persists a new item unless its payload hash is already queued
func (t *boltTx) InsertItem(item *models.QueueItem) (*models.QueueItem, error) {
	if !t.tx.Writable() {
		return nil, errReadOnly
	}
	if item.ID == "" || item.PayloadHash == "" {
		return nil, fmt.Errorf("queue item id and payload hash are required")
	}

	qb, err := t.queueBuckets()
	if err != nil {
		return nil, err
	}

	if existingID := qb.hash.Get([]byte(item.PayloadHash)); existingID != nil {
		return t.loadItem(qb.items, existingID)
	}
	if qb.items.Get([]byte(item.ID)) != nil {
		return nil, fmt.Errorf("queue item %s already exists", item.ID)
	}

	seq, err := qb.items.NextSequence()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	item.Seq = seq

	if err := t.putItem(qb.items, item); err != nil {
		return nil, err
	}
	if err := qb.hash.Put([]byte(item.PayloadHash), []byte(item.ID)); err != nil {
		return nil, fmt.Errorf("failed to index payload hash: %w", err)
	}
	if err := qb.order.Put(orderKey(item), []byte(item.ID)); err != nil {
		return nil, fmt.Errorf("failed to index order: %w", err)
	}
	return nil, nil
}

// GetItem retrieves a queue item by id
func (t *boltTx) GetItem(id string) (*models.QueueItem, error) {
	items, err := t.bucket(bucketQueue)
	if err != nil {
		return nil, err
	}
	return t.loadItem(items, []byte(id))
}

// UpdateItem overwrites an existing item and keeps both indexes consistent
func (t *boltTx) UpdateItem(item *models.QueueItem) error {
	if !t.tx.Writable() {
		return errReadOnly
	}

	qb, err := t.queueBuckets()
	if err != nil {
		return err
	}

	old, err := t.loadItem(qb.items, []byte(item.ID))
	if err != nil {
		return err
	}

	if old.PayloadHash != item.PayloadHash {
		if owner := qb.hash.Get([]byte(item.PayloadHash)); owner != nil && string(owner) != item.ID {
			return storage.ErrDuplicateHash
		}
		if err := qb.hash.Delete([]byte(old.PayloadHash)); err != nil {
			return fmt.Errorf("failed to drop payload hash: %w", err)
		}
		if err := qb.hash.Put([]byte(item.PayloadHash), []byte(item.ID)); err != nil {
			return fmt.Errorf("failed to index payload hash: %w", err)
		}
	}

	oldKey, newKey := orderKey(old), orderKey(item)
	if !bytes.Equal(oldKey, newKey) {
		if err := qb.order.Delete(oldKey); err != nil {
			return fmt.Errorf("failed to drop order key: %w", err)
		}
		if err := qb.order.Put(newKey, []byte(item.ID)); err != nil {
			return fmt.Errorf("failed to index order: %w", err)
		}
	}

	return t.putItem(qb.items, item)
}

// DeleteItem removes an item together with its index entries
func (t *boltTx) DeleteItem(id string) error {
	if !t.tx.Writable() {
		return errReadOnly
	}

	qb, err := t.queueBuckets()
	if err != nil {
		return err
	}

	old, err := t.loadItem(qb.items, []byte(id))
	if err != nil {
		return err
	}

	if owner := qb.hash.Get([]byte(old.PayloadHash)); owner != nil && string(owner) == id {
		if err := qb.hash.Delete([]byte(old.PayloadHash)); err != nil {
			return fmt.Errorf("failed to drop payload hash: %w", err)
		}
	}
	if err := qb.order.Delete(orderKey(old)); err != nil {
		return fmt.Errorf("failed to drop order key: %w", err)
	}
	if err := qb.items.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	return nil
}

// ListItems returns all items in FIFO order (timestamp, then insertion order)
func (t *boltTx) ListItems() ([]*models.QueueItem, error) {
	qb, err := t.queueBuckets()
	if err != nil {
		return nil, err
	}

	var items []*models.QueueItem
	c := qb.order.Cursor()
	for k, id := c.First(); k != nil; k, id = c.Next() {
		item, err := t.loadItem(qb.items, id)
		if err != nil {
			return nil, fmt.Errorf("order index points to %s: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}
