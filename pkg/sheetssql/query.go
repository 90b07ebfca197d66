package sheetssql

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
)

// GetTableAs reads every record of a table into structs of type T.
// Columns are matched to fields by their ssql_header tag, so the column
// order in the sheet does not matter.
func GetTableAs[T any](ctx context.Context, db *DB, tableName string) ([]T, error) {
	values, err := db.client.GetValues(ctx, db.spreadsheetID, tableRange(tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to get table %s: %w", tableName, err)
	}

	if len(values) < 3 {
		// Need at least headers, types, and one data row
		return []T{}, nil
	}

	headers := values[0]
	dataRows := values[2:]

	var model T
	t := reflect.TypeOf(model)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", t.Kind())
	}

	columnIndexes := make(map[string]int)
	for i, header := range headers {
		if headerStr, ok := header.(string); ok {
			columnIndexes[headerStr] = i
		}
	}

	fieldMap := make(map[string]reflect.StructField)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if columnName := field.Tag.Get("ssql_header"); columnName != "" {
			fieldMap[columnName] = field
		}
	}

	results := make([]T, 0, len(dataRows))
	for rowIdx, row := range dataRows {
		result := reflect.New(t).Elem()

		for columnName, colIdx := range columnIndexes {
			field, ok := fieldMap[columnName]
			if !ok {
				continue
			}

			// Trailing empty cells are omitted by the API
			if colIdx >= len(row) || row[colIdx] == nil {
				continue
			}

			if err := setFieldValue(result.FieldByName(field.Name), row[colIdx]); err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", rowIdx+3, columnName, err)
			}
		}

		results = append(results, result.Interface().(T))
	}

	return results, nil
}

// setFieldValue converts a sheet cell value to the field's Go type and sets it
func setFieldValue(field reflect.Value, cellValue interface{}) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	// Formatted reads return strings; unformatted ones can return numbers and bools
	cellStr, ok := cellValue.(string)
	if !ok {
		cellStr = fmt.Sprint(cellValue)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(cellStr)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if cellStr == "" {
			field.SetInt(0)
			return nil
		}
		intVal, err := strconv.ParseInt(cellStr, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse int: %w", err)
		}
		field.SetInt(intVal)

	case reflect.Float32, reflect.Float64:
		if cellStr == "" {
			field.SetFloat(0)
			return nil
		}
		floatVal, err := strconv.ParseFloat(cellStr, 64)
		if err != nil {
			return fmt.Errorf("failed to parse float: %w", err)
		}
		field.SetFloat(floatVal)

	case reflect.Bool:
		if cellStr == "" {
			field.SetBool(false)
			return nil
		}
		boolVal, err := strconv.ParseBool(cellStr)
		if err != nil {
			return fmt.Errorf("failed to parse bool: %w", err)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// InsertModels appends structs as rows to the named table, in the column
// order of their ssql_header tags
func InsertModels[T any](ctx context.Context, db *DB, tableName string, models []T) error {
	if len(models) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(models))
	for _, model := range models {
		rows = append(rows, modelRow(model))
	}

	return db.InsertRows(ctx, tableName, rows)
}

func modelRow(model interface{}) []interface{} {
	v := reflect.Indirect(reflect.ValueOf(model))
	t := v.Type()

	row := make([]interface{}, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("ssql_header") == "" {
			continue
		}
		row = append(row, v.Field(i).Interface())
	}
	return row
}
