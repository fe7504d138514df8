package sheetssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestEscortRequest struct {
	ID           string `ssql_header:"Request ID" ssql_type:"text"`
	EventDate    string `ssql_header:"Event Date" ssql_type:"date"`
	RidersNeeded int    `ssql_header:"Riders Needed" ssql_type:"int"`
}

type TestAssignment struct {
	ID        string `ssql_header:"Assignment ID" ssql_type:"text"`
	RequestID string `ssql_header:"Request ID" ssql_type:"text"`
	RiderID   string `ssql_header:"Rider ID" ssql_type:"text"`
	Status    string `ssql_header:"Status" ssql_type:"text"`
	ChangeID  string `ssql_header:"Change ID" ssql_type:"uuid"`
}

type namedRow struct {
	ID string `ssql_header:"id" ssql_type:"text"`
}

func (namedRow) TableName() string { return "Riders" }

func TestSchemaFromModels_SingleModel(t *testing.T) {
	schema, err := SchemaFromModels(TestEscortRequest{})
	require.NoError(t, err)

	require.Len(t, schema.Tables, 1)
	table := schema.Tables[0]

	assert.Equal(t, "test_escort_request", table.Name)
	require.Len(t, table.Columns, 3)

	assert.Equal(t, Column{Name: "Request ID", Type: "text"}, table.Columns[0])
	assert.Equal(t, Column{Name: "Event Date", Type: "date"}, table.Columns[1])
	assert.Equal(t, Column{Name: "Riders Needed", Type: "int"}, table.Columns[2])
}

func TestSchemaFromModels_MultipleModels(t *testing.T) {
	schema, err := SchemaFromModels(TestEscortRequest{}, TestAssignment{})
	require.NoError(t, err)

	require.Len(t, schema.Tables, 2)
	assert.Equal(t, "test_escort_request", schema.Tables[0].Name)
	assert.Len(t, schema.Tables[0].Columns, 3)
	assert.Equal(t, "test_assignment", schema.Tables[1].Name)
	assert.Len(t, schema.Tables[1].Columns, 5)

	table, ok := schema.Table("test_assignment")
	require.True(t, ok)
	assert.Equal(t, "Change ID", table.Columns[4].Name)

	_, ok = schema.Table("missing")
	assert.False(t, ok)
}

func TestSchemaFromModels_WithPointer(t *testing.T) {
	schema, err := SchemaFromModels(&TestEscortRequest{})
	require.NoError(t, err)

	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "test_escort_request", schema.Tables[0].Name)
}

func TestSchemaFromModels_TableNameOverride(t *testing.T) {
	schema, err := SchemaFromModels(namedRow{})
	require.NoError(t, err)
	assert.Equal(t, "Riders", schema.Tables[0].Name)
	assert.Equal(t, "Riders", TableName[namedRow]())
}

func TestSchemaFromModels_MissingSheetTag(t *testing.T) {
	type InvalidModel struct {
		ID string `ssql_type:"uuid"`
	}

	_, err := SchemaFromModels(InvalidModel{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'ssql_header' tag")
}

func TestSchemaFromModels_MissingTypeTag(t *testing.T) {
	type InvalidModel struct {
		ID string `ssql_header:"id"`
	}

	_, err := SchemaFromModels(InvalidModel{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'ssql_type' tag")
}

func TestSchemaFromModels_NotAStruct(t *testing.T) {
	_, err := SchemaFromModels("not a struct")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be a struct")
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"EscortRequest", "escort_request"},
		{"AvailabilityEntry", "availability_entry"},
		{"UUID", "u_u_i_d"},
		{"simple", "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, toSnakeCase(tt.input))
		})
	}
}

func TestNewDB_CreatesMissingTables(t *testing.T) {
	mock := newMockSheetsClient()
	schema, err := SchemaFromModels(TestEscortRequest{}, TestAssignment{})
	require.NoError(t, err)

	_, err = NewDB(mock, "sheet-1", schema)
	require.NoError(t, err)

	assert.Equal(t, []string{"test_escort_request", "test_assignment"}, mock.created)
	rows := mock.tables["test_assignment"]
	require.Len(t, rows, 2)
	assert.Equal(t, []interface{}{"Assignment ID", "Request ID", "Rider ID", "Status", "Change ID"}, rows[0])
	assert.Equal(t, []interface{}{"text", "text", "text", "text", "uuid"}, rows[1])
}

func TestNewDB_ExistingTableMatches(t *testing.T) {
	mock := newMockSheetsClient()
	mock.tables["test_escort_request"] = [][]interface{}{
		{"Request ID", "Event Date", "Riders Needed"},
		{"text", "date", "int"},
	}
	schema, err := SchemaFromModels(TestEscortRequest{})
	require.NoError(t, err)

	_, err = NewDB(mock, "sheet-1", schema)
	require.NoError(t, err)
	assert.Empty(t, mock.created)
}

func TestNewDB_ExistingTableMismatch(t *testing.T) {
	mock := newMockSheetsClient()
	mock.tables["test_escort_request"] = [][]interface{}{
		{"Request ID", "Date", "Riders Needed"},
		{"text", "date", "int"},
	}
	schema, err := SchemaFromModels(TestEscortRequest{})
	require.NoError(t, err)

	_, err = NewDB(mock, "sheet-1", schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected header 'Event Date'")
}
