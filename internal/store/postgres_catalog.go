package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Table names reach these queries from the embedded catalog schema only and
// are quoted with pgx.Identifier.

func (s *PostgresStore) ListTaxonomy(ctx context.Context, table TaxonomyTable) ([]TaxonomyItem, error) {
	parent := pgx.Identifier{table.Parent}.Sanitize()
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, display_name, created_at FROM `+parent+` ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table.Parent, err)
	}
	defer rows.Close()

	items := []TaxonomyItem{}
	index := map[string]int{}
	for rows.Next() {
		var item TaxonomyItem
		if err := rows.Scan(&item.ID, &item.Name, &item.DisplayName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Parent, err)
		}
		item.Children = []TaxonomyItem{}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if table.Child == "" {
		return items, nil
	}

	child := pgx.Identifier{table.Child}.Sanitize()
	fk := pgx.Identifier{table.ForeignKey}.Sanitize()
	childRows, err := s.db.QueryContext(ctx, `SELECT id, `+fk+`, name, display_name, created_at FROM `+child+` ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table.Child, err)
	}
	defer childRows.Close()

	for childRows.Next() {
		var item TaxonomyItem
		var parentID string
		if err := childRows.Scan(&item.ID, &parentID, &item.Name, &item.DisplayName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Child, err)
		}
		item.ParentID = &parentID
		if i, ok := index[parentID]; ok {
			items[i].Children = append(items[i].Children, item)
		}
	}
	return items, childRows.Err()
}

func (s *PostgresStore) InsertTaxonomyItem(ctx context.Context, table string, item TaxonomyItem) (TaxonomyItem, error) {
	name := pgx.Identifier{table}.Sanitize()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO `+name+` (id, name, display_name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, item.ID, item.Name, item.DisplayName).Scan(&item.CreatedAt)
	if err != nil {
		return TaxonomyItem{}, fmt.Errorf("insert %s: %w", table, translate(err))
	}
	item.Children = []TaxonomyItem{}
	return item, nil
}

func (s *PostgresStore) InsertTaxonomyChild(ctx context.Context, table, foreignKey string, item TaxonomyItem) (TaxonomyItem, error) {
	if item.ParentID == nil {
		return TaxonomyItem{}, fmt.Errorf("insert %s: parent id required", table)
	}
	name := pgx.Identifier{table}.Sanitize()
	fk := pgx.Identifier{foreignKey}.Sanitize()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO `+name+` (id, `+fk+`, name, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, item.ID, *item.ParentID, item.Name, item.DisplayName).Scan(&item.CreatedAt)
	if err != nil {
		return TaxonomyItem{}, fmt.Errorf("insert %s: %w", table, translate(err))
	}
	return item, nil
}

func (s *PostgresStore) UpdateTaxonomyItem(ctx context.Context, table, id, slug, displayName string) error {
	name := pgx.Identifier{table}.Sanitize()
	result, err := s.db.ExecContext(ctx, `UPDATE `+name+` SET name=$2, display_name=$3 WHERE id=$1`, id, slug, displayName)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, translate(err))
	}
	return requireRow(result)
}

// UpdateTaxonomyChild only touches a child that belongs to parentID.
func (s *PostgresStore) UpdateTaxonomyChild(ctx context.Context, table, foreignKey, parentID, id, slug, displayName string) error {
	name := pgx.Identifier{table}.Sanitize()
	fk := pgx.Identifier{foreignKey}.Sanitize()
	result, err := s.db.ExecContext(ctx, `UPDATE `+name+` SET name=$3, display_name=$4 WHERE id=$1 AND `+fk+`=$2`, id, parentID, slug, displayName)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, translate(err))
	}
	return requireRow(result)
}

// DeleteTaxonomyItem removes a row; child rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteTaxonomyItem(ctx context.Context, table, id string) error {
	name := pgx.Identifier{table}.Sanitize()
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+name+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteTaxonomyChild(ctx context.Context, table, foreignKey, parentID, id string) error {
	name := pgx.Identifier{table}.Sanitize()
	fk := pgx.Identifier{foreignKey}.Sanitize()
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+name+` WHERE id=$1 AND `+fk+`=$2`, id, parentID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireRow(result)
}

const discountColumns = `id, name, description, code, discount_percent, applies_to, start_date, end_date, is_active, created_at, updated_at`

func scanDiscount(row interface{ Scan(...any) error }) (Discount, error) {
	var d Discount
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.Code,
		&d.DiscountPercent,
		&d.AppliesTo,
		&d.StartDate,
		&d.EndDate,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

func (s *PostgresStore) ListDiscounts(ctx context.Context) ([]Discount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+discountColumns+` FROM discounts ORDER BY start_date DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	items := []Discount{}
	for rows.Next() {
		item, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetDiscount(ctx context.Context, id string) (Discount, error) {
	return scanDiscount(s.db.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id=$1`, id))
}

func (s *PostgresStore) InsertDiscount(ctx context.Context, d Discount) (Discount, error) {
	item, err := scanDiscount(s.db.QueryRowContext(ctx, `
		INSERT INTO discounts (id, name, description, code, discount_percent, applies_to, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+discountColumns,
		d.ID, d.Name, d.Description, d.Code, d.DiscountPercent, d.AppliesTo, d.StartDate, d.EndDate, d.IsActive))
	if err != nil {
		return Discount{}, fmt.Errorf("insert discount: %w", translate(err))
	}
	return item, nil
}

func (s *PostgresStore) UpdateDiscount(ctx context.Context, d Discount) (Discount, error) {
	item, err := scanDiscount(s.db.QueryRowContext(ctx, `
		UPDATE discounts
		SET name=$2, description=$3, code=$4, discount_percent=$5, applies_to=$6,
			start_date=$7, end_date=$8, is_active=$9, updated_at=NOW()
		WHERE id=$1
		RETURNING `+discountColumns,
		d.ID, d.Name, d.Description, d.Code, d.DiscountPercent, d.AppliesTo, d.StartDate, d.EndDate, d.IsActive))
	if err != nil {
		return Discount{}, fmt.Errorf("update discount: %w", translate(err))
	}
	return item, nil
}

func (s *PostgresStore) DeleteDiscount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM discounts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete discount: %w", err)
	}
	return requireRow(result)
}
