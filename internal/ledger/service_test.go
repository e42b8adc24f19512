package ledger

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockDB is a mock implementation of DB
type mockDB struct {
	events    map[string]*Event
	order     []string
	createErr error
	getErr    error
	listErr   error
	appendErr map[string]error // keyed by item name
	pingErr   error
	getCalls  int
}

func newMockDB() *mockDB {
	return &mockDB{
		events:    make(map[string]*Event),
		appendErr: make(map[string]error),
	}
}

func (m *mockDB) CreateEvent(event *Event) error {
	if m.createErr != nil {
		return m.createErr
	}
	copied := *event
	copied.Goods = []Item{}
	m.events[event.ID] = &copied
	m.order = append(m.order, event.ID)
	return nil
}

func (m *mockDB) GetEvent(id string) (*Event, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	copied := *event
	copied.Goods = append([]Item{}, event.Goods...)
	return &copied, nil
}

func (m *mockDB) EventExists(id string) error {
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

func (m *mockDB) ListEvents(after string, limit int) ([]EventSummary, string, error) {
	if m.listErr != nil {
		return nil, "", m.listErr
	}
	events := make([]EventSummary, 0)
	for _, id := range m.order {
		if len(events) == limit {
			return events, events[len(events)-1].ID, nil
		}
		e := m.events[id]
		events = append(events, EventSummary{ID: e.ID, EventName: e.EventName, Description: e.Description})
	}
	return events, "", nil
}

func (m *mockDB) AppendItem(eventID string, item Item) error {
	if err := m.appendErr[item.Item]; err != nil {
		return err
	}
	event, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	event.Goods = append(event.Goods, item)
	event.Version++
	return nil
}

func (m *mockDB) UpdateItem(eventID string, item Item) error {
	event, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	for i := range event.Goods {
		if event.Goods[i].ID == item.ID {
			event.Goods[i] = item
			event.Version++
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
}

func (m *mockDB) RemoveItem(eventID, itemID string) error {
	event, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	for i := range event.Goods {
		if event.Goods[i].ID == itemID {
			event.Goods = append(event.Goods[:i], event.Goods[i+1:]...)
			event.Version++
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

func (m *mockDB) Ping() error {
	return m.pingErr
}

func (m *mockDB) Close() error {
	return nil
}

// sequenceIDGenerator hands out predictable ids
type sequenceIDGenerator struct {
	prefix string
	n      int
}

func (g *sequenceIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Service", func() {
	var (
		db      *mockDB
		ids     *sequenceIDGenerator
		clock   *mockTimeSource
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		ids = &sequenceIDGenerator{prefix: "id"}
		clock = &mockTimeSource{now: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, ids, clock)
	})

	Describe("CreateEvent", func() {
		var (
			name  string
			event *Event
			err   error
		)

		BeforeEach(func() {
			name = "Cabin trip"
		})

		JustBeforeEach(func() {
			event, err = service.CreateEvent(name, "weekend groceries")
		})

		When("the name is valid", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("assigns an id and timestamps", func() {
				Expect(event.ID).To(Equal("id-1"))
				Expect(event.CreatedAt).To(Equal(clock.now))
				Expect(event.Goods).To(BeEmpty())
			})

			It("allows a duplicate name", func() {
				second, err := service.CreateEvent(name, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(second.ID).NotTo(Equal(event.ID))
			})
		})

		When("the name is blank", func() {
			BeforeEach(func() {
				name = "  "
			})

			It("returns ErrInvalidEvent", func() {
				Expect(err).To(MatchError(ErrInvalidEvent))
			})
		})

		When("the store fails", func() {
			BeforeEach(func() {
				db.createErr = fmt.Errorf("%w: disk gone", ErrStoreUnavailable)
			})

			It("returns ErrStoreUnavailable", func() {
				Expect(err).To(MatchError(ErrStoreUnavailable))
			})
		})
	})

	Describe("ListEvents", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				_, err := service.CreateEvent(fmt.Sprintf("event %d", i), "")
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("clamps a non-positive limit to the maximum page size", func() {
			page, err := service.ListEvents("", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Events).To(HaveLen(3))
			Expect(page.Next).To(BeEmpty())
		})

		It("returns a cursor when more events remain", func() {
			page, err := service.ListEvents("", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Events).To(HaveLen(2))
			Expect(page.Next).To(Equal("id-2"))
		})

		It("wraps store errors", func() {
			db.listErr = errors.New("boom")
			_, err := service.ListEvents("", 10)
			Expect(err).To(MatchError(ContainSubstring("listing events")))
		})
	})

	Describe("AppendItem", func() {
		var eventID string

		BeforeEach(func() {
			event, err := service.CreateEvent("Cabin trip", "")
			Expect(err).NotTo(HaveOccurred())
			eventID = event.ID
		})

		It("round-trips through ListGoods", func() {
			item, err := service.AppendItem(eventID, Draft{ID: "milk-1", Item: "Milk", Price: "2,50", Payers: []string{"Anna", "Anna"}})
			Expect(err).NotTo(HaveOccurred())

			goods, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(goods).To(HaveLen(1))
			Expect(goods[0].ID).To(Equal("milk-1"))
			Expect(goods[0].Item).To(Equal("Milk"))
			Expect(goods[0].Price.Equal(item.Price)).To(BeTrue())
			Expect(goods[0].Payers).To(Equal([]string{"Anna", "Anna"}))
		})

		It("generates an id when none is given", func() {
			item, err := service.AppendItem(eventID, Draft{Item: "Milk", Price: "2.50"})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ID).To(Equal("id-2"))
			Expect(item.Payers).To(Equal([]string{}))
		})

		It("rejects an empty name", func() {
			_, err := service.AppendItem(eventID, Draft{Item: " ", Price: "2.50"})
			Expect(err).To(MatchError(ErrInvalidItem))
		})

		It("rejects an invalid price", func() {
			_, err := service.AppendItem(eventID, Draft{Item: "Milk", Price: "two"})
			Expect(err).To(MatchError(ErrInvalidPrice))
		})

		It("returns ErrEventNotFound for an unknown event", func() {
			_, err := service.AppendItem("missing", Draft{Item: "Milk", Price: "2.50"})
			Expect(err).To(MatchError(ErrEventNotFound))
		})
	})

	Describe("AppendItems", func() {
		var (
			eventID string
			drafts  []Draft
			result  *BatchResult
			err     error
		)

		BeforeEach(func() {
			event, createErr := service.CreateEvent("Cabin trip", "")
			Expect(createErr).NotTo(HaveOccurred())
			eventID = event.ID
			drafts = []Draft{
				{ID: "1", Item: "Milk", Price: "2,50"},
				{ID: "2", Item: "Bread", Price: "1,20"},
				{ID: "3", Item: "Cheese", Price: "n/a"},
				{ID: "4", Item: "Eggs", Price: "3.10"},
				{ID: "5", Item: "Butter", Price: "4"},
			}
		})

		JustBeforeEach(func() {
			result, err = service.AppendItems(eventID, drafts)
		})

		When("one draft has an unparseable price", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("reports four successes and one failure", func() {
				Expect(result.Succeeded).To(HaveLen(4))
				Expect(result.Failed).To(HaveLen(1))
				Expect(result.Failed[0].Index).To(Equal(2))
				Expect(result.Failed[0].ID).To(Equal("3"))
				Expect(result.Failed[0].Error).To(ContainSubstring("invalid price"))
			})

			It("stores exactly the successful items in order", func() {
				goods, listErr := service.ListGoods(eventID)
				Expect(listErr).NotTo(HaveOccurred())
				ids := make([]string, 0, len(goods))
				for _, g := range goods {
					ids = append(ids, g.ID)
				}
				Expect(ids).To(Equal([]string{"1", "2", "4", "5"}))
			})
		})

		When("the store rejects one append", func() {
			BeforeEach(func() {
				drafts[2].Price = "5.00"
				db.appendErr["Eggs"] = fmt.Errorf("%w: write failed", ErrStoreUnavailable)
			})

			It("checks the event without loading its goods", func() {
				Expect(db.getCalls).To(BeZero())
			})

			It("continues with the remaining drafts", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Succeeded).To(HaveLen(4))
				Expect(result.Failed).To(HaveLen(1))
				Expect(result.Failed[0].Item).To(Equal("Eggs"))
			})
		})

		When("the event does not exist", func() {
			BeforeEach(func() {
				eventID = "missing"
			})

			It("returns ErrEventNotFound", func() {
				Expect(err).To(MatchError(ErrEventNotFound))
				Expect(result).To(BeNil())
			})
		})
	})

	Describe("UpdateItem", func() {
		var eventID string

		BeforeEach(func() {
			event, err := service.CreateEvent("Cabin trip", "")
			Expect(err).NotTo(HaveOccurred())
			eventID = event.ID
			_, err = service.AppendItem(eventID, Draft{ID: "milk", Item: "Milk", Price: "2.50"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces all mutable fields and keeps the id", func() {
			item, err := service.UpdateItem(eventID, "milk", "Oat milk", "2,90", []string{"Ben"})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ID).To(Equal("milk"))

			goods, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(goods[0].Item).To(Equal("Oat milk"))
			Expect(goods[0].Price.String()).To(Equal("2.90"))
			Expect(goods[0].Payers).To(Equal([]string{"Ben"}))
		})

		It("is idempotent", func() {
			_, err := service.UpdateItem(eventID, "milk", "Oat milk", "2.90", []string{"Ben"})
			Expect(err).NotTo(HaveOccurred())
			once, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.UpdateItem(eventID, "milk", "Oat milk", "2.90", []string{"Ben"})
			Expect(err).NotTo(HaveOccurred())
			twice, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())

			Expect(twice).To(Equal(once))
		})

		It("returns ErrItemNotFound for an unknown item", func() {
			_, err := service.UpdateItem(eventID, "nope", "X", "1", nil)
			Expect(err).To(MatchError(ErrItemNotFound))
		})
	})

	Describe("RemoveItem", func() {
		var eventID string

		BeforeEach(func() {
			event, err := service.CreateEvent("Cabin trip", "")
			Expect(err).NotTo(HaveOccurred())
			eventID = event.ID
			_, err = service.AppendItem(eventID, Draft{ID: "milk", Item: "Milk", Price: "2.50"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the item", func() {
			Expect(service.RemoveItem(eventID, "milk")).To(Succeed())
			goods, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(goods).To(BeEmpty())
		})

		It("returns ErrItemNotFound and leaves goods unchanged", func() {
			before, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.RemoveItem(eventID, "nope")).To(MatchError(ErrItemNotFound))

			after, err := service.ListGoods(eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})
	})

	Describe("with a real BoltDB", func() {
		var bolt *BoltDB

		BeforeEach(func() {
			var err error
			bolt, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "ledger.db"))
			Expect(err).NotTo(HaveOccurred())
			service = NewService(bolt)
		})

		AfterEach(func() {
			bolt.Close()
		})

		It("pages through events in creation order", func() {
			var created []string
			for i := 0; i < 5; i++ {
				event, err := service.CreateEvent(fmt.Sprintf("event %d", i), "")
				Expect(err).NotTo(HaveOccurred())
				created = append(created, event.ID)
			}

			var listed []string
			after := ""
			for {
				page, err := service.ListEvents(after, 2)
				Expect(err).NotTo(HaveOccurred())
				for _, e := range page.Events {
					listed = append(listed, e.ID)
				}
				if page.Next == "" {
					break
				}
				after = page.Next
			}
			Expect(listed).To(Equal(created))
		})

		It("runs the batch scenario against the store", func() {
			event, err := service.CreateEvent("Cabin trip", "")
			Expect(err).NotTo(HaveOccurred())

			result, err := service.AppendItems(event.ID, []Draft{
				{Item: "Milk", Price: "2,50"},
				{Item: "Bread", Price: "1,20"},
				{Item: "Cheese", Price: "x"},
				{Item: "Eggs", Price: "3.10"},
				{Item: "Butter", Price: "4"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Succeeded).To(HaveLen(4))
			Expect(result.Failed).To(HaveLen(1))

			goods, err := service.ListGoods(event.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(goods).To(HaveLen(4))
			Expect(goods[2].Item).To(Equal("Eggs"))
		})

		It("reports a failed ping when closed", func() {
			Expect(bolt.Close()).To(Succeed())
			Expect(service.Ping()).To(MatchError(ErrStoreUnavailable))
		})
	})
})
