package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/screener-back/pkg/models"
)

// GetOrCreateSymbol returns the symbol for (code, market), inserting it on
// first sight. The insert is a single upsert so concurrent callers converge
// on one row.
func (mc *MySQLClient) GetOrCreateSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error) {
	query := `
		INSERT INTO symbols (symbol, name, market_type)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)
	`

	result, err := mc.db.ExecContext(ctx, query, code, code, string(market))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert symbol %s/%s: %w", code, market, err)
	}

	id, err := result.LastInsertId()
	if err != nil || id == 0 {
		// Fall back to a lookup when the driver does not report the id
		sym, lookupErr := mc.GetSymbol(ctx, code, market)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if sym == nil {
			return nil, fmt.Errorf("symbol %s/%s missing after upsert", code, market)
		}
		return sym, nil
	}

	return &models.Symbol{
		ID:         id,
		Symbol:     code,
		Name:       code,
		MarketType: market,
	}, nil
}

// GetSymbol retrieves a symbol by code and market; nil when absent
func (mc *MySQLClient) GetSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error) {
	query := `
		SELECT id, symbol, name, market_type
		FROM symbols
		WHERE symbol = ? AND market_type = ?
	`

	sym := &models.Symbol{}
	err := mc.db.QueryRowContext(ctx, query, code, string(market)).Scan(
		&sym.ID,
		&sym.Symbol,
		&sym.Name,
		&sym.MarketType,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol: %w", err)
	}

	return sym, nil
}

// ListSymbols returns the symbols of a market ordered by code. An empty
// market lists every segment.
func (mc *MySQLClient) ListSymbols(ctx context.Context, market models.MarketType) ([]*models.Symbol, error) {
	query := `
		SELECT id, symbol, name, market_type
		FROM symbols
		WHERE (? = '' OR market_type = ?)
		ORDER BY symbol, market_type
	`

	rows, err := mc.db.QueryContext(ctx, query, string(market), string(market))
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*models.Symbol
	for rows.Next() {
		sym := &models.Symbol{}
		if err := rows.Scan(&sym.ID, &sym.Symbol, &sym.Name, &sym.MarketType); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}

	return symbols, rows.Err()
}
