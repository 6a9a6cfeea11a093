package models

import "time"

// Category groups transactions and products
type Category struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // "income" or "expense"
	Color     *string   `json:"color,omitempty"`
	Icon      *string   `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SyncMeta
}

func (c *Category) TableName() Table { return TableCategories }
func (c *Category) RecordID() string { return c.ID }
func (c *Category) Meta() *SyncMeta  { return &c.SyncMeta }

// Store is a shop or merchant
type Store struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SyncMeta
}

func (s *Store) TableName() Table { return TableStores }
func (s *Store) RecordID() string { return s.ID }
func (s *Store) Meta() *SyncMeta  { return &s.SyncMeta }

// Product is an item whose price is tracked across stores
type Product struct {
	ID         string    `json:"id"`
	UserID     *string   `json:"userId,omitempty"`
	Name       string    `json:"name"`
	CategoryID *string   `json:"categoryId,omitempty"`
	Barcode    *string   `json:"barcode,omitempty"`
	Unit       *string   `json:"unit,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	SyncMeta
}

func (p *Product) TableName() Table { return TableProducts }
func (p *Product) RecordID() string { return p.ID }
func (p *Product) Meta() *SyncMeta  { return &p.SyncMeta }

// Transaction is a single income or expense entry
type Transaction struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"userId,omitempty"`
	Amount      Money     `json:"amount"`
	Kind        string    `json:"kind"`
	Description *string   `json:"description,omitempty"`
	CategoryID  *string   `json:"categoryId,omitempty"`
	StoreID     *string   `json:"storeId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	SyncMeta
}

func (t *Transaction) TableName() Table { return TableTransactions }
func (t *Transaction) RecordID() string { return t.ID }
func (t *Transaction) Meta() *SyncMeta  { return &t.SyncMeta }

// Listing is the current price of a product at a store
type Listing struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	ProductID string    `json:"productId"`
	StoreID   string    `json:"storeId"`
	Price     Money     `json:"price"`
	Currency  *string   `json:"currency,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SyncMeta
}

func (l *Listing) TableName() Table { return TableListings }
func (l *Listing) RecordID() string { return l.ID }
func (l *Listing) Meta() *SyncMeta  { return &l.SyncMeta }

// ListingHistory is a past price observation for a listing
type ListingHistory struct {
	ID         string    `json:"id"`
	UserID     *string   `json:"userId,omitempty"`
	ListingID  string    `json:"listingId"`
	Price      Money     `json:"price"`
	RecordedAt time.Time `json:"recordedAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	SyncMeta
}

func (h *ListingHistory) TableName() Table { return TableListingHistory }
func (h *ListingHistory) RecordID() string { return h.ID }
func (h *ListingHistory) Meta() *SyncMeta  { return &h.SyncMeta }
