package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareProfiles_IsSymmetricComplementary(t *testing.T) {
	a := &TableProfile{RowCount: 3, Columns: []ColumnProfile{{Name: "id", Type: "integer"}, {Name: "name", Type: "string"}}}
	b := &TableProfile{RowCount: 2, Columns: []ColumnProfile{{Name: "id", Type: "string"}, {Name: "total", Type: "float"}}}

	ab := CompareProfiles(a, b)
	ba := CompareProfiles(b, a)

	assert.Equal(t, []string{"total"}, ab.ColumnsAdded)
	assert.Equal(t, []string{"name"}, ab.ColumnsRemoved)
	assert.Equal(t, ab.ColumnsAdded, ba.ColumnsRemoved)
	assert.Equal(t, ab.ColumnsRemoved, ba.ColumnsAdded)
	assert.Equal(t, []ColumnModification{{Column: "id", OldType: "integer", NewType: "string"}}, ab.ColumnsModified)
	assert.Equal(t, -1, ab.RowCountChange)
	assert.Equal(t, 1, ba.RowCountChange)
}

func TestCompareProfiles_Identical(t *testing.T) {
	p := &TableProfile{RowCount: 1, Columns: []ColumnProfile{{Name: "x", Type: "integer"}}}
	assert.True(t, CompareProfiles(p, p).IsEmpty())
}
