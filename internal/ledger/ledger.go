package ledger

import (
	"errors"
	"time"
)

// MaxPageSize is the largest number of events returned by one listing call
const MaxPageSize = 100

var (
	// ErrEventNotFound is returned when an event id does not resolve
	ErrEventNotFound = errors.New("event not found")
	// ErrItemNotFound is returned when no item with the id exists in the event
	ErrItemNotFound = errors.New("item not found")
	// ErrDuplicateItem is returned when an item id is already used in the event
	ErrDuplicateItem = errors.New("duplicate item id")
	// ErrInvalidPrice is returned for prices that are not non-negative decimals
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidItem is returned for items with an empty name
	ErrInvalidItem = errors.New("invalid item")
	// ErrInvalidEvent is returned for events with an empty name
	ErrInvalidEvent = errors.New("invalid event")
	// ErrStoreUnavailable wraps failures of the underlying document store
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Item is a single line item charged to an event
type Item struct {
	ID     string   `json:"id"`
	Item   string   `json:"item"`
	Price  Price    `json:"price"`
	Payers []string `json:"payers"`
}

// Event is a shared expense with an ordered list of goods
type Event struct {
	ID          string    `json:"id"`
	EventName   string    `json:"event_name"`
	Description string    `json:"description"`
	Goods       []Item    `json:"goods"`
	Version     uint64    `json:"version"` // bumped on every mutation
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventSummary is the listing view of an event, without its goods
type EventSummary struct {
	ID          string `json:"id"`
	EventName   string `json:"event_name"`
	Description string `json:"description"`
}

// EventPage is one page of events. Next is the cursor for the following page
// and is empty when there are no more events.
type EventPage struct {
	Events []EventSummary `json:"events"`
	Next   string         `json:"next,omitempty"`
}

// Draft is an unvalidated item as submitted by a caller
type Draft struct {
	ID     string   `json:"id,omitempty"`
	Item   string   `json:"item"`
	Price  RawPrice `json:"price"`
	Payers []string `json:"payers"`
}

// BatchFailure describes one draft rejected by AppendItems
type BatchFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Item  string `json:"item"`
	Price string `json:"price"`
	Error string `json:"error"`
}

// BatchResult reports the outcome of AppendItems
type BatchResult struct {
	Succeeded []Item         `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}
