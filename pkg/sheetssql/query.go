package sheetssql

import (
	"fmt"
	"reflect"
	"strconv"
)

// TableName returns the table a model type is stored in
func TableName[T any]() string {
	var model T
	return tableNameOf(reflect.TypeOf(model))
}

// GetTable reads every row of the model's table
func GetTable[T any](db *DB) ([]T, error) {
	return GetTableAs[T](db, TableName[T]())
}

// GetTableAs retrieves all rows from a table and maps them to structs of type T
// Skips the first two rows (headers and types)
func GetTableAs[T any](db *DB, tableName string) ([]T, error) {
	values, err := db.client.GetValues(db.spreadsheetID, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get table %s: %w", tableName, err)
	}

	if len(values) < 3 {
		return []T{}, nil
	}

	headers := values[0]
	dataRows := values[2:]

	var model T
	t := reflect.TypeOf(model)

	columnIndexes := make(map[string]int)
	for i, header := range headers {
		if headerStr, ok := header.(string); ok {
			columnIndexes[headerStr] = i
		}
	}

	fieldMap := make(map[string]reflect.StructField)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		columnName := field.Tag.Get("ssql_header")
		if columnName != "" {
			fieldMap[columnName] = field
		}
	}

	results := make([]T, 0, len(dataRows))
	for rowIdx, row := range dataRows {
		if isBlankRow(row) {
			continue
		}

		result := reflect.New(t).Elem()

		for columnName, colIdx := range columnIndexes {
			field, ok := fieldMap[columnName]
			if !ok {
				continue
			}

			if colIdx >= len(row) {
				continue
			}

			cellValue := row[colIdx]
			if cellValue == nil {
				continue
			}

			if err := setFieldValue(result.FieldByName(field.Name), cellValue); err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", rowIdx+3, columnName, err)
			}
		}

		results = append(results, result.Interface().(T))
	}

	return results, nil
}

// isBlankRow skips rows a human cleared by hand
func isBlankRow(row []interface{}) bool {
	for _, cell := range row {
		if s, ok := cell.(string); !ok || s != "" {
			if cell != nil {
				return false
			}
		}
	}
	return true
}

// setFieldValue converts a sheet cell value to the appropriate Go type and sets it on the field
func setFieldValue(field reflect.Value, cellValue interface{}) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	// Sheets returns strings for formatted reads and float64 for unformatted numbers
	var cellStr string
	switch v := cellValue.(type) {
	case string:
		cellStr = v
	case float64:
		cellStr = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		cellStr = strconv.FormatBool(v)
	default:
		return fmt.Errorf("unsupported cell value type %T", cellValue)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(cellStr)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if cellStr == "" {
			field.SetInt(0)
		} else {
			intVal, err := strconv.ParseInt(cellStr, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse int: %w", err)
			}
			field.SetInt(intVal)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if cellStr == "" {
			field.SetUint(0)
		} else {
			uintVal, err := strconv.ParseUint(cellStr, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse uint: %w", err)
			}
			field.SetUint(uintVal)
		}

	case reflect.Float32, reflect.Float64:
		if cellStr == "" {
			field.SetFloat(0)
		} else {
			floatVal, err := strconv.ParseFloat(cellStr, 64)
			if err != nil {
				return fmt.Errorf("failed to parse float: %w", err)
			}
			field.SetFloat(floatVal)
		}

	case reflect.Bool:
		if cellStr == "" {
			field.SetBool(false)
		} else {
			boolVal, err := strconv.ParseBool(cellStr)
			if err != nil {
				return fmt.Errorf("failed to parse bool: %w", err)
			}
			field.SetBool(boolVal)
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// rowOf flattens a model's tagged fields into a sheet row
func rowOf(v reflect.Value) []interface{} {
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

// InsertModel appends a struct as a row to its corresponding table
func InsertModel[T any](db *DB, model T) error {
	return db.InsertRow(TableName[T](), rowOf(reflect.ValueOf(model)))
}

// InsertModels appends multiple structs as rows to their corresponding table in one call
func InsertModels[T any](db *DB, models []T) error {
	if len(models) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(models))
	for _, model := range models {
		rows = append(rows, rowOf(reflect.ValueOf(model)))
	}

	return db.InsertRows(TableName[T](), rows)
}
