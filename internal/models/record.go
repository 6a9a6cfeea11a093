package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pocketledger/syncengine/internal/observability"
)

// Table identifies one of the syncable tables
type Table string

const (
	TableCategories     Table = "categories"
	TableStores         Table = "stores"
	TableProducts       Table = "products"
	TableTransactions   Table = "transactions"
	TableListings       Table = "listings"
	TableListingHistory Table = "listing_history"
)

// SyncOrder lists the syncable tables parents-first so foreign keys never
// dangle while changes are applied.
var SyncOrder = []Table{
	TableCategories,
	TableStores,
	TableProducts,
	TableTransactions,
	TableListings,
	TableListingHistory,
}

// ErrUnknownTable is returned for a table outside the syncable set
var ErrUnknownTable = errors.New("unknown table")

// ParseTable validates a table name
func ParseTable(s string) (Table, error) {
	for _, t := range SyncOrder {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrUnknownTable
}

// NewRecord returns an empty row of the given table, ready to decode into
func NewRecord(table Table) (Record, error) {
	switch table {
	case TableCategories:
		return &Category{}, nil
	case TableStores:
		return &Store{}, nil
	case TableProducts:
		return &Product{}, nil
	case TableTransactions:
		return &Transaction{}, nil
	case TableListings:
		return &Listing{}, nil
	case TableListingHistory:
		return &ListingHistory{}, nil
	}
	return nil, ErrUnknownTable
}

// SyncStatus marks whether a row still needs to be pushed
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
)

// SyncMeta holds the local-only bookkeeping columns shared by every syncable row.
// Neither field is ever sent over the wire.
type SyncMeta struct {
	SyncStatus *SyncStatus `json:"-"`
	DeletedAt  *time.Time  `json:"-"`
}

// IsPending reports whether the row is flagged for the next push
func (m *SyncMeta) IsPending() bool {
	return m.SyncStatus != nil && *m.SyncStatus == SyncStatusPending
}

// IsDeleted reports whether the row is a tombstone
func (m *SyncMeta) IsDeleted() bool {
	return m.DeletedAt != nil
}

// SetStatus sets the sync status
func (m *SyncMeta) SetStatus(status SyncStatus) {
	m.SyncStatus = &status
}

// Record is implemented by every row type of a syncable table.
type Record interface {
	TableName() Table
	RecordID() string
	Meta() *SyncMeta
}

// Money is a monetary amount held as a float locally and sent as a decimal
// string on the wire.
type Money float64

// MarshalJSON encodes the amount as a decimal string
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number. Anything that
// does not parse as a number decodes to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			raw = ""
		}
	}

	if !IsValidMoney(raw) {
		observability.Warnf("malformed monetary value %q, using 0", raw)
	}
	*m = ParseMoney(raw)
	return nil
}

// String formats the amount without exponent or trailing zeros
func (m Money) String() string {
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

// ParseMoney parses a decimal string, returning zero for malformed input
func ParseMoney(s string) Money {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Money(f)
}

// IsValidMoney reports whether s parses as a finite decimal amount
func IsValidMoney(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}
