package models

import (
	"fmt"
	"reflect"
)

// ChangeSet is the unit exchanged with the backend for a single table
type ChangeSet[T Record] struct {
	Upserted []T      `json:"upserted"`
	Deleted  []string `json:"deleted"`
}

// TableChanges is a table-agnostic view of a ChangeSet
type TableChanges struct {
	Table    Table
	Upserted []Record
	Deleted  []string
}

// Len returns the number of upserts plus deletes
func (tc TableChanges) Len() int {
	return len(tc.Upserted) + len(tc.Deleted)
}

// SyncChanges carries one ChangeSet per syncable table
type SyncChanges struct {
	Categories     ChangeSet[*Category]       `json:"categories"`
	Stores         ChangeSet[*Store]          `json:"stores"`
	Products       ChangeSet[*Product]        `json:"products"`
	Transactions   ChangeSet[*Transaction]    `json:"transactions"`
	Listings       ChangeSet[*Listing]        `json:"listings"`
	ListingHistory ChangeSet[*ListingHistory] `json:"listingHistory"`
}

// NewSyncChanges returns a SyncChanges whose lists encode as [] rather than null
func NewSyncChanges() SyncChanges {
	return SyncChanges{
		Categories:     emptyChangeSet[*Category](),
		Stores:         emptyChangeSet[*Store](),
		Products:       emptyChangeSet[*Product](),
		Transactions:   emptyChangeSet[*Transaction](),
		Listings:       emptyChangeSet[*Listing](),
		ListingHistory: emptyChangeSet[*ListingHistory](),
	}
}

func emptyChangeSet[T Record]() ChangeSet[T] {
	return ChangeSet[T]{Upserted: []T{}, Deleted: []string{}}
}

// For returns the changes of one table
func (c *SyncChanges) For(table Table) TableChanges {
	switch table {
	case TableCategories:
		return view(table, c.Categories)
	case TableStores:
		return view(table, c.Stores)
	case TableProducts:
		return view(table, c.Products)
	case TableTransactions:
		return view(table, c.Transactions)
	case TableListings:
		return view(table, c.Listings)
	case TableListingHistory:
		return view(table, c.ListingHistory)
	}
	return TableChanges{Table: table}
}

// Put replaces the changes of tc.Table. Every upserted record must belong to that table.
func (c *SyncChanges) Put(tc TableChanges) error {
	var err error
	switch tc.Table {
	case TableCategories:
		c.Categories, err = typed[*Category](tc)
	case TableStores:
		c.Stores, err = typed[*Store](tc)
	case TableProducts:
		c.Products, err = typed[*Product](tc)
	case TableTransactions:
		c.Transactions, err = typed[*Transaction](tc)
	case TableListings:
		c.Listings, err = typed[*Listing](tc)
	case TableListingHistory:
		c.ListingHistory, err = typed[*ListingHistory](tc)
	default:
		err = fmt.Errorf("unknown table %q", tc.Table)
	}
	return err
}

// Tables returns every table's changes in dependency order
func (c *SyncChanges) Tables() []TableChanges {
	out := make([]TableChanges, 0, len(SyncOrder))
	for _, t := range SyncOrder {
		out = append(out, c.For(t))
	}
	return out
}

// Total counts upserts and deletes across all tables
func (c *SyncChanges) Total() int {
	total := 0
	for _, tc := range c.Tables() {
		total += tc.Len()
	}
	return total
}

// Validate rejects null rows, rows without an id and empty delete ids
func (c *SyncChanges) Validate() error {
	checks := []error{
		c.Categories.validate(TableCategories),
		c.Stores.validate(TableStores),
		c.Products.validate(TableProducts),
		c.Transactions.validate(TableTransactions),
		c.Listings.validate(TableListings),
		c.ListingHistory.validate(TableListingHistory),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

func (cs ChangeSet[T]) validate(table Table) error {
	for i, r := range cs.Upserted {
		if v := reflect.ValueOf(r); !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
			return fmt.Errorf("%s: upserted[%d] is null", table, i)
		}
		if r.RecordID() == "" {
			return fmt.Errorf("%s: upserted[%d] has no id", table, i)
		}
	}
	for i, id := range cs.Deleted {
		if id == "" {
			return fmt.Errorf("%s: deleted[%d] is empty", table, i)
		}
	}
	return nil
}

func view[T Record](table Table, cs ChangeSet[T]) TableChanges {
	records := make([]Record, 0, len(cs.Upserted))
	for _, r := range cs.Upserted {
		records = append(records, r)
	}
	return TableChanges{Table: table, Upserted: records, Deleted: cs.Deleted}
}

func typed[T Record](tc TableChanges) (ChangeSet[T], error) {
	cs := emptyChangeSet[T]()
	for _, r := range tc.Upserted {
		rec, ok := r.(T)
		if !ok {
			return cs, fmt.Errorf("record %s does not belong to table %s", r.RecordID(), tc.Table)
		}
		cs.Upserted = append(cs.Upserted, rec)
	}
	cs.Deleted = append(cs.Deleted, tc.Deleted...)
	return cs, nil
}

// PushedIDs holds, per table, the ids of every record included in a push
type PushedIDs map[Table][]string

// Total returns the number of ids across all tables
func (p PushedIDs) Total() int {
	total := 0
	for _, ids := range p {
		total += len(ids)
	}
	return total
}

// SyncChangesWithIDs is the collector's output: the wire payload plus the
// ids needed to mark rows synced once the cycle commits.
type SyncChangesWithIDs struct {
	Changes SyncChanges
	IDs     PushedIDs
}

// PushRequest for POST /api/sync/push
type PushRequest struct {
	DeviceID     string      `json:"deviceId"`
	LastSyncedAt *string     `json:"lastSyncedAt"`
	Changes      SyncChanges `json:"changes"`
}

// PushCounts reports what the backend accepted
type PushCounts struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// PushResult is the data of a push response
type PushResult struct {
	SyncedAt string     `json:"syncedAt"`
	Counts   PushCounts `json:"counts"`
}

// PushResponse for POST /api/sync/push
type PushResponse struct {
	Data *PushResult `json:"data"`
}

// PullRequest for POST /api/sync/pull. A nil LastSyncedAt requests a full snapshot.
type PullRequest struct {
	DeviceID     string  `json:"deviceId"`
	LastSyncedAt *string `json:"lastSyncedAt"`
}

// PullResult is the data of a pull response
type PullResult struct {
	SyncedAt string      `json:"syncedAt"`
	Changes  SyncChanges `json:"changes"`
}

// PullResponse for POST /api/sync/pull
type PullResponse struct {
	Data *PullResult `json:"data"`
}

// ErrorResponse is the error body returned by the backend and the control API
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
