package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderapp/larder/internal/model"
)

type ShoppingStore struct {
	db *sql.DB
}

func NewShoppingStore(db *sql.DB) *ShoppingStore {
	return &ShoppingStore{db: db}
}

const shoppingCols = `id, household_id, name, category, checked, checked_at, added_by, created_at, updated_at`

func scanShoppingItem(scanner interface{ Scan(...any) error }) (*model.ShoppingListItem, error) {
	var it model.ShoppingListItem
	var checked int
	var checkedAt sql.NullTime
	var addedBy sql.NullInt64
	err := scanner.Scan(
		&it.ID, &it.HouseholdID, &it.Name, &it.Category, &checked,
		&checkedAt, &addedBy, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Checked = checked != 0
	if checkedAt.Valid {
		it.CheckedAt = &checkedAt.Time
	}
	if addedBy.Valid {
		it.AddedBy = &addedBy.Int64
	}
	return &it, nil
}

func (s *ShoppingStore) CreateItem(householdID int64, name, category string, addedBy *int64) (*model.ShoppingListItem, error) {
	var by sql.NullInt64
	if addedBy != nil {
		by = sql.NullInt64{Int64: *addedBy, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO shopping_list_items (household_id, name, category, added_by) VALUES (?, ?, ?, ?)`,
		householdID, name, category, by,
	)
	if err != nil {
		return nil, fmt.Errorf("insert shopping item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItemByID(id)
}

func (s *ShoppingStore) GetItemByID(id int64) (*model.ShoppingListItem, error) {
	row := s.db.QueryRow(`SELECT `+shoppingCols+` FROM shopping_list_items WHERE id = ?`, id)
	it, err := scanShoppingItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shopping item: %w", err)
	}
	return it, nil
}

func (s *ShoppingStore) ListItems(householdID int64) ([]model.ShoppingListItem, error) {
	rows, err := s.db.Query(
		`SELECT `+shoppingCols+` FROM shopping_list_items WHERE household_id = ? ORDER BY checked ASC, created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list shopping items: %w", err)
	}
	defer rows.Close()

	var items []model.ShoppingListItem
	for rows.Next() {
		it, err := scanShoppingItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shopping item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ShoppingStore) ToggleChecked(id int64) (*model.ShoppingListItem, error) {
	_, err := s.db.Exec(
		`UPDATE shopping_list_items
		 SET checked = CASE checked WHEN 0 THEN 1 ELSE 0 END,
		     checked_at = CASE checked WHEN 0 THEN datetime('now') ELSE NULL END,
		     updated_at = datetime('now')
		 WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle checked: %w", err)
	}
	return s.GetItemByID(id)
}

func (s *ShoppingStore) DeleteItem(id int64) error {
	_, err := s.db.Exec(`DELETE FROM shopping_list_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete shopping item: %w", err)
	}
	return nil
}

// ClearChecked removes checked items and logs each as a purchase in the
// same transaction, so the suggestion engine sees every completed trip.
func (s *ShoppingStore) ClearChecked(householdID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO purchases (household_id, name, category)
		 SELECT household_id, name, category FROM shopping_list_items
		 WHERE household_id = ? AND checked = 1`,
		householdID,
	); err != nil {
		return 0, fmt.Errorf("log purchases: %w", err)
	}

	result, err := tx.Exec(
		`DELETE FROM shopping_list_items WHERE household_id = ? AND checked = 1`,
		householdID,
	)
	if err != nil {
		return 0, fmt.Errorf("clear checked: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// ListPurchasesSince returns the purchase log for frequency scoring.
func (s *ShoppingStore) ListPurchasesSince(householdID int64, since time.Time) ([]model.Purchase, error) {
	rows, err := s.db.Query(
		`SELECT id, household_id, name, category, purchased_at FROM purchases
		 WHERE household_id = ? AND purchased_at >= ?
		 ORDER BY purchased_at ASC, id ASC`,
		householdID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.ID, &p.HouseholdID, &p.Name, &p.Category, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
