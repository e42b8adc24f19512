package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	eventsBucketName = "events"
	goodsBucketName  = "goods"
	metaKey          = "meta"
)

// DB defines the interface for event document storage
type DB interface {
	// CreateEvent stores a new event without goods
	CreateEvent(event *Event) error

	// GetEvent retrieves an event with all of its goods in stored order
	GetEvent(id string) (*Event, error)

	// EventExists returns ErrEventNotFound if no event has the id. Goods are
	// not read.
	EventExists(id string) error

	// ListEvents returns up to limit events whose id sorts after the cursor,
	// plus the cursor for the next page (empty when exhausted)
	ListEvents(after string, limit int) ([]EventSummary, string, error)

	// AppendItem adds an item to the end of the event's goods
	AppendItem(eventID string, item Item) error

	// UpdateItem replaces the first item whose id matches item.ID
	UpdateItem(eventID string, item Item) error

	// RemoveItem deletes the first item with the given id
	RemoveItem(eventID, itemID string) error

	// Ping checks the store is reachable
	Ping() error

	// Close closes the database connection
	Close() error
}

// eventMeta is the stored form of an event, goods live in a nested bucket
type eventMeta struct {
	ID          string    `json:"id"`
	EventName   string    `json:"event_name"`
	Description string    `json:"description"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BoltDB implements the DB interface using BoltDB. Each event is a nested
// bucket holding its metadata and a goods bucket keyed by insertion sequence,
// so every mutation touches one event inside one write transaction.
type BoltDB struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltDB creates a new BoltDB instance that stamps mutations in UTC
func NewBoltDB(path string) (*BoltDB, error) {
	return NewBoltDBWithClock(path, func() time.Time { return time.Now().UTC() })
}

// NewBoltDBWithClock creates a new BoltDB instance with a custom clock for
// the UpdatedAt stamp of mutations
func NewBoltDBWithClock(path string, now func() time.Time) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(eventsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, now: now}, nil
}

// CreateEvent saves a new event
func (b *BoltDB) CreateEvent(event *Event) error {
	return b.update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(eventsBucketName))
		eb, err := root.CreateBucket([]byte(event.ID))
		if err != nil {
			return fmt.Errorf("creating event bucket %s: %w", event.ID, err)
		}
		if _, err := eb.CreateBucket([]byte(goodsBucketName)); err != nil {
			return fmt.Errorf("creating goods bucket: %w", err)
		}
		return putMeta(eb, &eventMeta{
			ID:          event.ID,
			EventName:   event.EventName,
			Description: event.Description,
			Version:     event.Version,
			CreatedAt:   event.CreatedAt,
			UpdatedAt:   event.UpdatedAt,
		})
	})
}

// GetEvent retrieves an event by ID
func (b *BoltDB) GetEvent(id string) (*Event, error) {
	var event *Event
	err := b.view(func(tx *bbolt.Tx) error {
		eb, err := eventBucket(tx, id)
		if err != nil {
			return err
		}
		meta, err := getMeta(eb)
		if err != nil {
			return err
		}
		goods := make([]Item, 0)
		err = eb.Bucket([]byte(goodsBucketName)).ForEach(func(k, v []byte) error {
			item, err := decodeItem(v)
			if err != nil {
				return err
			}
			goods = append(goods, item)
			return nil
		})
		if err != nil {
			return err
		}
		event = &Event{
			ID:          meta.ID,
			EventName:   meta.EventName,
			Description: meta.Description,
			Goods:       goods,
			Version:     meta.Version,
			CreatedAt:   meta.CreatedAt,
			UpdatedAt:   meta.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns one page of events in id order
func (b *BoltDB) ListEvents(after string, limit int) ([]EventSummary, string, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	events := make([]EventSummary, 0)
	var next string
	err := b.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventsBucketName)).Cursor()

		var k, v []byte
		if after == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek([]byte(after))
			if k != nil && string(k) == after {
				k, v = c.Next()
			}
		}

		for ; k != nil; k, v = c.Next() {
			if v != nil {
				continue // not an event bucket
			}
			if len(events) == limit {
				next = events[len(events)-1].ID
				return nil
			}
			meta, err := getMeta(tx.Bucket([]byte(eventsBucketName)).Bucket(k))
			if err != nil {
				return err
			}
			events = append(events, EventSummary{
				ID:          meta.ID,
				EventName:   meta.EventName,
				Description: meta.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return events, next, nil
}

// EventExists checks for the event's bucket without decoding its goods
func (b *BoltDB) EventExists(id string) error {
	return b.view(func(tx *bbolt.Tx) error {
		_, err := eventBucket(tx, id)
		return err
	})
}

// AppendItem stores an item after the event's existing goods
func (b *BoltDB) AppendItem(eventID string, item Item) error {
	return b.mutate(eventID, func(goods *bbolt.Bucket) error {
		if _, _, err := findItem(goods, item.ID); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		} else if !errors.Is(err, ErrItemNotFound) {
			return err
		}
		seq, err := goods.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating item sequence: %w", err)
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return goods.Put(seqKey(seq), data)
	})
}

// UpdateItem overwrites the stored item with the same ID in place
func (b *BoltDB) UpdateItem(eventID string, item Item) error {
	return b.mutate(eventID, func(goods *bbolt.Bucket) error {
		key, _, err := findItem(goods, item.ID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return goods.Put(key, data)
	})
}

// RemoveItem deletes an item from the event
func (b *BoltDB) RemoveItem(eventID, itemID string) error {
	return b.mutate(eventID, func(goods *bbolt.Bucket) error {
		key, _, err := findItem(goods, itemID)
		if err != nil {
			return err
		}
		return goods.Delete(key)
	})
}

// Ping checks that the database is open and initialized
func (b *BoltDB) Ping() error {
	return b.view(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(eventsBucketName)) == nil {
			return errors.New("events bucket missing")
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// mutate runs fn against the event's goods bucket and bumps the event version
// in the same write transaction
func (b *BoltDB) mutate(eventID string, fn func(goods *bbolt.Bucket) error) error {
	return b.update(func(tx *bbolt.Tx) error {
		eb, err := eventBucket(tx, eventID)
		if err != nil {
			return err
		}
		if err := fn(eb.Bucket([]byte(goodsBucketName))); err != nil {
			return err
		}
		meta, err := getMeta(eb)
		if err != nil {
			return err
		}
		meta.Version++
		meta.UpdatedAt = b.now()
		return putMeta(eb, meta)
	})
}

func (b *BoltDB) update(fn func(tx *bbolt.Tx) error) error {
	return storeError(b.db.Update(fn))
}

func (b *BoltDB) view(fn func(tx *bbolt.Tx) error) error {
	return storeError(b.db.View(fn))
}

// storeError passes domain errors through and tags everything else as a
// store failure
func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{ErrEventNotFound, ErrItemNotFound, ErrDuplicateItem} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func eventBucket(tx *bbolt.Tx, id string) (*bbolt.Bucket, error) {
	eb := tx.Bucket([]byte(eventsBucketName)).Bucket([]byte(id))
	if eb == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return eb, nil
}

func getMeta(eb *bbolt.Bucket) (*eventMeta, error) {
	var meta eventMeta
	if err := json.Unmarshal(eb.Get([]byte(metaKey)), &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &meta, nil
}

func putMeta(eb *bbolt.Bucket, meta *eventMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return eb.Put([]byte(metaKey), data)
}

// findItem scans the goods bucket in order for the first item with the id
func findItem(goods *bbolt.Bucket, id string) ([]byte, Item, error) {
	c := goods.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		item, err := decodeItem(v)
		if err != nil {
			return nil, Item{}, err
		}
		if item.ID == id {
			return k, item, nil
		}
	}
	return nil, Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

func decodeItem(data []byte) (Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return Item{}, fmt.Errorf("unmarshaling item: %w", err)
	}
	if item.Payers == nil {
		item.Payers = []string{}
	}
	return item, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
