package storage

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

// Symbols of the form schema.table.field are loaded from that Postgres column.
var symbolRefRegex = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)$`)

// SymbolMetadata is one row of the symbols registry
type SymbolMetadata struct {
	Symbol    string
	Type      string // "classic" or "postgres_ref"
	RefSchema string
	RefTable  string
	RefField  string
}

// -----------------------------------------------------------------------------

// splitSymbolRefs separates plain symbols from table references
func splitSymbolRefs(raw []string) ([]string, []SymbolMetadata) {
	var classic []string
	var refs []SymbolMetadata

	for _, sym := range raw {
		if m := symbolRefRegex.FindStringSubmatch(sym); len(m) == 4 {
			refs = append(refs, SymbolMetadata{
				Symbol:    sym,
				Type:      "postgres_ref",
				RefSchema: m[1],
				RefTable:  m[2],
				RefField:  m[3],
			})
			continue
		}
		classic = append(classic, sym)
	}
	return classic, refs
}

// -----------------------------------------------------------------------------

// ExpandSymbols resolves table references in the configured stream symbols,
// registers everything in the symbols table and returns the plain symbol list.
func (d *PostgresDB) ExpandSymbols(rawSymbols []string) ([]string, error) {
	classic, refs := splitSymbolRefs(rawSymbols)

	registry := make([]SymbolMetadata, 0, len(rawSymbols))
	for _, sym := range classic {
		registry = append(registry, SymbolMetadata{Symbol: sym, Type: "classic"})
	}

	for _, ref := range refs {
		loaded, err := d.GetSymbolsFromTable(ref.RefSchema, ref.RefTable, ref.RefField)
		if err != nil {
			return classic, fmt.Errorf("failed to load symbols from %s: %w", ref.Symbol, err)
		}
		registry = append(registry, ref)
		for _, sym := range loaded {
			classic = append(classic, sym)
			registry = append(registry, SymbolMetadata{Symbol: sym, Type: "classic"})
		}
	}

	if err := d.RegisterSymbols(registry); err != nil {
		return classic, fmt.Errorf("failed to register symbols: %w", err)
	}
	return classic, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RegisterSymbols(symbols []SymbolMetadata) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, type, ref_schema, ref_table, ref_field, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			type = EXCLUDED.type,
			ref_schema = EXCLUDED.ref_schema,
			ref_table = EXCLUDED.ref_table,
			ref_field = EXCLUDED.ref_field,
			updated_at = EXCLUDED.updated_at
	`, d.table("symbols")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range symbols {
		if _, err := stmt.Exec(s.Symbol, s.Type, s.RefSchema, s.RefTable, s.RefField, time.Now().UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetSymbolsFromTable(schema, table, field string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s.%s`,
		pq.QuoteIdentifier(field), pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s != "" {
			symbols = append(symbols, s)
		}
	}

	return symbols, rows.Err()
}
