package repository

import (
	"fmt"
	"strings"

	"github.com/pocketledger/syncengine/internal/models"
)

type scanner interface {
	Scan(dest ...any) error
}

// tableDef is the static column mapping of one syncable table.
// sync_status and deleted_at are always the last two columns.
type tableDef struct {
	table   models.Table
	columns []string
	scan    func(scanner) (models.Record, error)
	values  func(models.Record) ([]any, error)
}

func (d tableDef) selectList() string {
	return strings.Join(d.columns, ", ")
}

// upsertSQL inserts a row or, on a primary key conflict, overwrites every column
func (d tableDef) upsertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(d.columns)), ", ")

	sets := make([]string, 0, len(d.columns)-1)
	for _, c := range d.columns {
		if c == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		d.table, d.selectList(), placeholders, strings.Join(sets, ", "))
}

func wrongType(rec models.Record, table models.Table) error {
	return fmt.Errorf("record %s (%T) does not belong to table %s", rec.RecordID(), rec, table)
}

var tableDefs = map[models.Table]tableDef{
	models.TableCategories: {
		table:   models.TableCategories,
		columns: []string{"id", "user_id", "name", "kind", "color", "icon", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var c models.Category
			err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.Color, &c.Icon,
				&c.CreatedAt, &c.UpdatedAt, &c.SyncStatus, &c.DeletedAt)
			return &c, err
		},
		values: func(rec models.Record) ([]any, error) {
			c, ok := rec.(*models.Category)
			if !ok {
				return nil, wrongType(rec, models.TableCategories)
			}
			return []any{c.ID, c.UserID, c.Name, c.Kind, c.Color, c.Icon,
				c.CreatedAt, c.UpdatedAt, c.SyncStatus, c.DeletedAt}, nil
		},
	},
	models.TableStores: {
		table:   models.TableStores,
		columns: []string{"id", "user_id", "name", "location", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var st models.Store
			err := s.Scan(&st.ID, &st.UserID, &st.Name, &st.Location,
				&st.CreatedAt, &st.UpdatedAt, &st.SyncStatus, &st.DeletedAt)
			return &st, err
		},
		values: func(rec models.Record) ([]any, error) {
			st, ok := rec.(*models.Store)
			if !ok {
				return nil, wrongType(rec, models.TableStores)
			}
			return []any{st.ID, st.UserID, st.Name, st.Location,
				st.CreatedAt, st.UpdatedAt, st.SyncStatus, st.DeletedAt}, nil
		},
	},
	models.TableProducts: {
		table:   models.TableProducts,
		columns: []string{"id", "user_id", "name", "category_id", "barcode", "unit", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var p models.Product
			err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.CategoryID, &p.Barcode, &p.Unit,
				&p.CreatedAt, &p.UpdatedAt, &p.SyncStatus, &p.DeletedAt)
			return &p, err
		},
		values: func(rec models.Record) ([]any, error) {
			p, ok := rec.(*models.Product)
			if !ok {
				return nil, wrongType(rec, models.TableProducts)
			}
			return []any{p.ID, p.UserID, p.Name, p.CategoryID, p.Barcode, p.Unit,
				p.CreatedAt, p.UpdatedAt, p.SyncStatus, p.DeletedAt}, nil
		},
	},
	models.TableTransactions: {
		table: models.TableTransactions,
		columns: []string{"id", "user_id", "amount", "kind", "description", "category_id", "store_id",
			"occurred_at", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var t models.Transaction
			err := s.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Description, &t.CategoryID, &t.StoreID,
				&t.OccurredAt, &t.CreatedAt, &t.UpdatedAt, &t.SyncStatus, &t.DeletedAt)
			return &t, err
		},
		values: func(rec models.Record) ([]any, error) {
			t, ok := rec.(*models.Transaction)
			if !ok {
				return nil, wrongType(rec, models.TableTransactions)
			}
			return []any{t.ID, t.UserID, float64(t.Amount), t.Kind, t.Description, t.CategoryID, t.StoreID,
				t.OccurredAt, t.CreatedAt, t.UpdatedAt, t.SyncStatus, t.DeletedAt}, nil
		},
	},
	models.TableListings: {
		table:   models.TableListings,
		columns: []string{"id", "user_id", "product_id", "store_id", "price", "currency", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var l models.Listing
			err := s.Scan(&l.ID, &l.UserID, &l.ProductID, &l.StoreID, &l.Price, &l.Currency,
				&l.CreatedAt, &l.UpdatedAt, &l.SyncStatus, &l.DeletedAt)
			return &l, err
		},
		values: func(rec models.Record) ([]any, error) {
			l, ok := rec.(*models.Listing)
			if !ok {
				return nil, wrongType(rec, models.TableListings)
			}
			return []any{l.ID, l.UserID, l.ProductID, l.StoreID, float64(l.Price), l.Currency,
				l.CreatedAt, l.UpdatedAt, l.SyncStatus, l.DeletedAt}, nil
		},
	},
	models.TableListingHistory: {
		table:   models.TableListingHistory,
		columns: []string{"id", "user_id", "listing_id", "price", "recorded_at", "created_at", "updated_at", "sync_status", "deleted_at"},
		scan: func(s scanner) (models.Record, error) {
			var h models.ListingHistory
			err := s.Scan(&h.ID, &h.UserID, &h.ListingID, &h.Price, &h.RecordedAt,
				&h.CreatedAt, &h.UpdatedAt, &h.SyncStatus, &h.DeletedAt)
			return &h, err
		},
		values: func(rec models.Record) ([]any, error) {
			h, ok := rec.(*models.ListingHistory)
			if !ok {
				return nil, wrongType(rec, models.TableListingHistory)
			}
			return []any{h.ID, h.UserID, h.ListingID, float64(h.Price), h.RecordedAt,
				h.CreatedAt, h.UpdatedAt, h.SyncStatus, h.DeletedAt}, nil
		},
	},
}

func lookupTable(table models.Table) (tableDef, error) {
	def, ok := tableDefs[table]
	if !ok {
		return tableDef{}, fmt.Errorf("unknown table %q", table)
	}
	return def, nil
}
