package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// PAYMENT METHOD REPOSITORY IMPLEMENTATION
// =====================================================
type methodRepository struct {
	db *sql.DB
}

func NewMethodRepository(db *sql.DB) MethodRepoInterface {
	return &methodRepository{db: db}
}

const methodColumns = `code, name, is_active, mode, configuration, updated_at`

func scanMethod(row rowScanner) (*model.PaymentMethod, error) {
	var (
		m      model.PaymentMethod
		config []byte
	)
	if err := row.Scan(&m.Code, &m.Name, &m.IsActive, &m.Mode, &config, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.Configuration = map[string]string{}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &m.Configuration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration of %s: %w", m.Code, err)
		}
	}
	if m.Mode != model.ModeTest {
		m.Mode = model.ModeLive
	}
	return &m, nil
}

func (r *methodRepository) GetByCode(ctx context.Context, code string) (*model.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE code = $1`

	method, err := scanMethod(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewMethodNotFoundError(code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method %s: %w", code, err)
	}
	return method, nil
}

func (r *methodRepository) List(ctx context.Context) ([]*model.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*model.PaymentMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}
