package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string   `json:"name"   validate:"required"`
	Price  *float64 `json:"price"  validate:"required,gt=0"`
	Note   string   `json:"note,omitempty" validate:"max=3"`
	Hidden string   `json:"-"`
}

func TestFields_Valid(t *testing.T) {
	p := 10.0
	fields, err := Fields(sample{Name: "x", Price: &p})
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestFields_ReportsJSONNames(t *testing.T) {
	fields, err := Fields(sample{Note: "too long"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price", "note"}, fields)
}

func TestFields_PointerValueChecked(t *testing.T) {
	p := -1.0
	fields, err := Fields(sample{Name: "x", Price: &p})
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, fields)
}

func TestFields_NonStruct(t *testing.T) {
	_, err := Fields(42)
	assert.Error(t, err)
}
