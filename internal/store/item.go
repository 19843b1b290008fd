package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderapp/larder/internal/model"
)

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemCols = `id, household_id, name, category, quantity, price_cents, expires_at, disposition, disposed_at, added_by, created_at, updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var it model.Item
	var expiresAt, disposedAt sql.NullTime
	var addedBy sql.NullInt64
	err := scanner.Scan(
		&it.ID, &it.HouseholdID, &it.Name, &it.Category, &it.Quantity, &it.PriceCents,
		&expiresAt, &it.Disposition, &disposedAt, &addedBy, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		it.ExpiresAt = &expiresAt.Time
	}
	if disposedAt.Valid {
		it.DisposedAt = &disposedAt.Time
	}
	if addedBy.Valid {
		it.AddedBy = &addedBy.Int64
	}
	return &it, nil
}

func (s *ItemStore) Create(householdID int64, name, category string, quantity int, priceCents int64, expiresAt *time.Time, addedBy *int64) (*model.Item, error) {
	var exp sql.NullTime
	if expiresAt != nil {
		exp = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}
	var by sql.NullInt64
	if addedBy != nil {
		by = sql.NullInt64{Int64: *addedBy, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO items (household_id, name, category, quantity, price_cents, expires_at, added_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, name, category, quantity, priceCents, exp, by,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ItemStore) GetByID(id int64) (*model.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// ListPantry returns items that have not been consumed or wasted yet.
func (s *ItemStore) ListPantry(householdID int64) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemCols+` FROM items WHERE household_id = ? AND disposition = '' ORDER BY created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pantry items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListDisposed returns consumed/wasted items since the given time, for the
// waste report.
func (s *ItemStore) ListDisposed(householdID int64, since time.Time) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemCols+` FROM items
		 WHERE household_id = ? AND disposition != '' AND disposed_at >= ?
		 ORDER BY disposed_at ASC, id ASC`,
		householdID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list disposed items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// CountPantry counts live items, for free-tier capacity checks.
func (s *ItemStore) CountPantry(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM items WHERE household_id = ? AND disposition = ''`,
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pantry items: %w", err)
	}
	return n, nil
}

func (s *ItemStore) Update(id int64, name, category string, quantity int, priceCents int64, expiresAt *time.Time) (*model.Item, error) {
	var exp sql.NullTime
	if expiresAt != nil {
		exp = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE items SET name = ?, category = ?, quantity = ?, price_cents = ?, expires_at = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		name, category, quantity, priceCents, exp, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return s.GetByID(id)
}

// Dispose marks an item consumed or wasted.
func (s *ItemStore) Dispose(id int64, disposition string) (*model.Item, error) {
	if disposition != model.DispositionConsumed && disposition != model.DispositionWasted {
		return nil, fmt.Errorf("invalid disposition %q", disposition)
	}
	_, err := s.db.Exec(
		`UPDATE items SET disposition = ?, disposed_at = datetime('now'), updated_at = datetime('now') WHERE id = ?`,
		disposition, id,
	)
	if err != nil {
		return nil, fmt.Errorf("dispose item: %w", err)
	}
	return s.GetByID(id)
}

func (s *ItemStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}
