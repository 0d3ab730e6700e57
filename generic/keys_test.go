package generic_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-recon/generic"
)

func TestNormalizePlate_StripsWhitespaceAndUppercases(t *testing.T) {
	assert.Equal(t, "AB123", generic.NormalizePlate(" ab 123 "))
	assert.Equal(t, "AB123", generic.NormalizePlate("AB123"))
	assert.Equal(t, "DXBA12345", generic.NormalizePlate("dxb\tA 12345\n"))
	assert.Equal(t, "", generic.NormalizePlate("   "))
}

func TestNormalizePlate_Idempotent(t *testing.T) {
	for _, raw := range []string{" ab 123 ", "x y z", "Q  77", "", "already"} {
		once := generic.NormalizePlate(raw)
		assert.Equal(t, once, generic.NormalizePlate(once), "raw=%q", raw)
	}
}

func TestResolveHeader_FirstCandidateWins(t *testing.T) {
	// GIVEN: A file that carries both alias spellings
	headers := []string{"Plate", "PLATE NO.", "pickup date"}

	// WHEN: Resolving with priority ["Plate No.", "Plate"]
	got, ok := generic.ResolveHeader([]string{"Plate No.", "Plate"}, headers)

	// THEN: The higher-priority candidate is used, returned in the file's own spelling
	require.True(t, ok)
	assert.Equal(t, "PLATE NO.", got)

	got, ok = generic.ResolveHeader([]string{"Pick-up Date", "Pickup Date"}, headers)
	require.True(t, ok)
	assert.Equal(t, "pickup date", got)
}

func TestResolveHeader_Absent(t *testing.T) {
	_, ok := generic.ResolveHeader([]string{"Status"}, []string{"State", "Plate"})
	assert.False(t, ok)
}

func TestSchema_RequireSuggestsClosestHeader(t *testing.T) {
	// GIVEN: A contracts file whose pickup column is misspelled
	schema := generic.ResolveSchema("contracts", []string{"Contract No.", "Pickup Dt"}, []generic.FieldSpec{
		{Field: "contract_number", Candidates: []string{"Contract No."}},
		{Field: "pickup", Candidates: []string{"Pick-up Date", "Pickup Date"}},
	})

	// WHEN: Requiring the pickup field
	err := schema.Require("contract_number", "pickup")

	// THEN: A configuration error names the field and suggests the near miss
	require.Error(t, err)
	assert.True(t, generic.IsConfigurationError(err))
	var mh *generic.MissingHeaderError
	require.True(t, errors.As(err, &mh))
	assert.Equal(t, "pickup", mh.Field)
	assert.Equal(t, "Pickup Dt", mh.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "Pickup Dt"`)
}

func TestSchema_ExtraKeepsUnclaimedColumns(t *testing.T) {
	schema := generic.ResolveSchema("contracts", []string{"Plate", "Colour"}, []generic.FieldSpec{
		{Field: "plate", Candidates: []string{"Plate No.", "Plate"}},
	})
	row := generic.Row{"Plate": "A1", "Colour": "red"}

	assert.Equal(t, "A1", schema.Text(row, "plate"))
	assert.Equal(t, map[string]any{"Colour": "red"}, schema.Extra(row))
	assert.Nil(t, schema.Value(row, "status"))
}

func TestText_WholeFloatsHaveNoDecimalPoint(t *testing.T) {
	assert.Equal(t, "12345", generic.Text(12345.0))
	assert.Equal(t, "12.5", generic.Text(12.5))
	assert.Equal(t, "K500", generic.Text("  K500 "))
	assert.Equal(t, "", generic.Text(nil))
}

func TestParseAmount(t *testing.T) {
	d, ok := generic.ParseAmount("AED 1,250.50")
	require.True(t, ok)
	assert.Equal(t, "1250.5", d.String())

	d, ok = generic.ParseAmount(4.0)
	require.True(t, ok)
	assert.Equal(t, "4", d.String())

	_, ok = generic.ParseAmount("n/a")
	assert.False(t, ok)
	_, ok = generic.ParseAmount(nil)
	assert.False(t, ok)
}
