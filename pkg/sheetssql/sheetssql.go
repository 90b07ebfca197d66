// Package sheetssql treats the tabs of a spreadsheet as typed tables. Each
// tab starts with a header row and a type row; every row after that is a
// record.
package sheetssql

import (
	"context"
	"fmt"
)

// SheetsClient defines the sheets operations the tables are built on
type SheetsClient interface {
	GetValues(ctx context.Context, spreadsheetID, sheetRange string) ([][]interface{}, error)
	AppendRows(ctx context.Context, spreadsheetID, sheetRange string, values [][]interface{}) error
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	CreateSheet(ctx context.Context, spreadsheetID, sheetTitle string) (int64, error)
}

// Column defines a column with name and type
type Column struct {
	Name string
	Type string // e.g., "text", "date", "datetime", "int"
}

// TableSchema defines the structure of a table
type TableSchema struct {
	Name    string
	Columns []Column
}

// Schema defines the database schema
type Schema struct {
	Tables []TableSchema
}

// DB represents a spreadsheet used as a database
type DB struct {
	client        SheetsClient
	spreadsheetID string
	schema        *Schema
}

// NewDB connects to a spreadsheet and ensures every table in the schema
// exists with the expected header and type rows
func NewDB(ctx context.Context, client SheetsClient, spreadsheetID string, schema *Schema) (*DB, error) {
	db := &DB{
		client:        client,
		spreadsheetID: spreadsheetID,
		schema:        schema,
	}

	if err := db.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// SpreadsheetID returns the database spreadsheet ID
func (db *DB) SpreadsheetID() string {
	return db.spreadsheetID
}

// InsertRows appends rows to the end of the named table
func (db *DB) InsertRows(ctx context.Context, tableName string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	return db.client.AppendRows(ctx, db.spreadsheetID, tableRange(tableName), rows)
}

// tableRange addresses a whole tab, quoting titles that contain spaces
func tableRange(tableName string) string {
	return fmt.Sprintf("'%s'!A1:ZZ", tableName)
}
