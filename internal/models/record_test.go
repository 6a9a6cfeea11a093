package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_JSON(t *testing.T) {
	t.Run("encodes as decimal string", func(t *testing.T) {
		data, err := json.Marshal(Money(12.5))
		require.NoError(t, err)
		assert.Equal(t, `"12.5"`, string(data))

		data, err = json.Marshal(Money(1e21))
		require.NoError(t, err)
		assert.Equal(t, `"1000000000000000000000"`, string(data))
	})

	t.Run("decodes string and number", func(t *testing.T) {
		var m Money
		require.NoError(t, json.Unmarshal([]byte(`"19.99"`), &m))
		assert.Equal(t, Money(19.99), m)

		require.NoError(t, json.Unmarshal([]byte(`7.25`), &m))
		assert.Equal(t, Money(7.25), m)

		require.NoError(t, json.Unmarshal([]byte(`" -3 "`), &m))
		assert.Equal(t, Money(-3), m)
	})

	t.Run("malformed value decodes to zero", func(t *testing.T) {
		m := Money(5)
		require.NoError(t, json.Unmarshal([]byte(`"abc"`), &m))
		assert.Zero(t, m)

		m = Money(5)
		require.NoError(t, json.Unmarshal([]byte(`null`), &m))
		assert.Zero(t, m)
	})

	t.Run("non-finite values are rejected", func(t *testing.T) {
		assert.False(t, IsValidMoney("NaN"))
		assert.False(t, IsValidMoney("Inf"))
		assert.Zero(t, ParseMoney("NaN"))
		assert.True(t, IsValidMoney("0.01"))
	})
}

func TestRecord_WireFormat(t *testing.T) {
	deleted := time.Now()
	tx := &Transaction{
		ID:         "tx-1",
		Amount:     42.1,
		Kind:       "expense",
		OccurredAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	tx.SetStatus(SyncStatusPending)
	tx.DeletedAt = &deleted

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "42.1", fields["amount"])
	assert.NotContains(t, fields, "syncStatus")
	assert.NotContains(t, fields, "deletedAt")
	assert.NotContains(t, fields, "SyncStatus")
	assert.NotContains(t, fields, "DeletedAt")
	assert.NotContains(t, fields, "categoryId", "nil pointers are omitted")
	assert.NotContains(t, fields, "description")
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("listing_history")
	require.NoError(t, err)
	assert.Equal(t, TableListingHistory, table)

	_, err = ParseTable("users")
	assert.ErrorIs(t, err, ErrUnknownTable)

	for _, table := range SyncOrder {
		rec, err := NewRecord(table)
		require.NoError(t, err)
		assert.Equal(t, table, rec.TableName())
	}
}

func TestSyncChanges(t *testing.T) {
	t.Run("empty changes encode every table as empty lists", func(t *testing.T) {
		changes := NewSyncChanges()
		data, err := json.Marshal(changes)
		require.NoError(t, err)

		var decoded map[string]map[string][]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded, 6)
		for _, key := range []string{"categories", "stores", "products", "transactions", "listings", "listingHistory"} {
			require.Contains(t, decoded, key)
			assert.NotNil(t, decoded[key]["upserted"])
			assert.NotNil(t, decoded[key]["deleted"])
		}
		assert.Zero(t, changes.Total())
	})

	t.Run("put and read back", func(t *testing.T) {
		changes := NewSyncChanges()
		err := changes.Put(TableChanges{
			Table:    TableCategories,
			Upserted: []Record{&Category{ID: "c1"}},
			Deleted:  []string{"c2"},
		})
		require.NoError(t, err)

		tc := changes.For(TableCategories)
		require.Len(t, tc.Upserted, 1)
		assert.Equal(t, "c1", tc.Upserted[0].RecordID())
		assert.Equal(t, []string{"c2"}, tc.Deleted)
		assert.Equal(t, 2, changes.Total())
	})

	t.Run("put rejects records of another table", func(t *testing.T) {
		changes := NewSyncChanges()
		err := changes.Put(TableChanges{
			Table:    TableStores,
			Upserted: []Record{&Category{ID: "c1"}},
		})
		assert.Error(t, err)
	})

	t.Run("tables come back in dependency order", func(t *testing.T) {
		changes := NewSyncChanges()
		var order []Table
		for _, tc := range changes.Tables() {
			order = append(order, tc.Table)
		}
		assert.Equal(t, SyncOrder, order)
	})

	t.Run("decodes pull payload with string and number money", func(t *testing.T) {
		payload := `{
			"categories": {"upserted": [{"id": "c1", "name": "Food", "kind": "expense",
				"createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z"}], "deleted": []},
			"transactions": {"upserted": [
				{"id": "t1", "amount": "10.50", "kind": "expense", "categoryId": "c1",
				 "occurredAt": "2024-01-02T00:00:00Z", "createdAt": "2024-01-02T00:00:00Z", "updatedAt": "2024-01-02T00:00:00Z"},
				{"id": "t2", "amount": 3, "kind": "income",
				 "occurredAt": "2024-01-02T00:00:00Z", "createdAt": "2024-01-02T00:00:00Z", "updatedAt": "2024-01-02T00:00:00Z"}
			], "deleted": ["t9"]}
		}`

		changes := NewSyncChanges()
		require.NoError(t, json.Unmarshal([]byte(payload), &changes))

		require.Len(t, changes.Transactions.Upserted, 2)
		assert.Equal(t, Money(10.5), changes.Transactions.Upserted[0].Amount)
		assert.Equal(t, Money(3), changes.Transactions.Upserted[1].Amount)
		assert.Equal(t, []string{"t9"}, changes.Transactions.Deleted)
		assert.Equal(t, 4, changes.Total())
	})

	t.Run("validate rejects null rows and missing ids", func(t *testing.T) {
		ok := NewSyncChanges()
		ok.Categories.Upserted = []*Category{{ID: "c1"}}
		ok.Stores.Deleted = []string{"s1"}
		assert.NoError(t, ok.Validate())

		for name, payload := range map[string]string{
			"null row":     `{"categories": {"upserted": [null], "deleted": []}}`,
			"missing id":   `{"listings": {"upserted": [{"price": "2.50"}], "deleted": []}}`,
			"empty delete": `{"listingHistory": {"upserted": [], "deleted": [""]}}`,
		} {
			t.Run(name, func(t *testing.T) {
				changes := NewSyncChanges()
				require.NoError(t, json.Unmarshal([]byte(payload), &changes))
				assert.Error(t, changes.Validate())
			})
		}
	})
}

func TestSyncState_Clone(t *testing.T) {
	ts := "2024-01-01T00:00:00Z"
	state := SyncState{Status: StatusSuccess, LastSyncedAt: &ts}

	clone := state.Clone()
	*clone.LastSyncedAt = "changed"

	assert.Equal(t, "2024-01-01T00:00:00Z", *state.LastSyncedAt)
	assert.True(t, StatusPushing.IsActive())
	assert.False(t, StatusSuccess.IsActive())
}
