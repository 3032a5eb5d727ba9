package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentTables(t *testing.T) {
	tables := [][][]string{
		stackedTable(),
		{{"Summary"}, {""}, {""}},
		{{"#7"}, {""}},
		namelessTable(),
		namelessTable(),
		compactTable(),
	}

	groups := SegmentTables(tables)
	require.Len(t, groups, 4)
	assert.Equal(t, 1, groups[0].Number)
	assert.Equal(t, 1, groups[1].Number)
	assert.Equal(t, 2, groups[2].Number)
	assert.Equal(t, 2, groups[3].Number)
	assert.Equal(t, compactTable(), groups[3].Table)
}

func TestSegmentOCRLines(t *testing.T) {
	t.Run("explicit headers", func(t *testing.T) {
		sections := SegmentOCRLines(ocrText)
		require.Len(t, sections, 1)
		assert.Equal(t, 1, sections[0].Number)
		assert.Len(t, sections[0].Lines, 4)
		assert.NotContains(t, sections[0].Lines, "#1")
		assert.Equal(t, "Name Rating Pre Post", sections[0].Lines[0])
	})

	t.Run("player one opens the next group", func(t *testing.T) {
		text := "#3\n1 | Ann Lee 1500 1510\n2 | Bo Kim 1400 1390\n1 | Cy Day 1700 1720\n2 | Di Fox 1650 1640\n"
		sections := SegmentOCRLines(text)
		require.Len(t, sections, 2)
		assert.Equal(t, 3, sections[0].Number)
		assert.Equal(t, 4, sections[1].Number)
		assert.Equal(t, []string{"1 | Cy Day 1700 1720", "2 | Di Fox 1650 1640"}, sections[1].Lines)
	})

	t.Run("no header", func(t *testing.T) {
		text := "preamble\n1 | Ann Lee 1500 1510\n2 | Bo Kim 1400 1390"
		sections := SegmentOCRLines(text)
		require.Len(t, sections, 1)
		assert.Equal(t, 1, sections[0].Number)
		assert.Len(t, sections[0].Lines, 2)
	})
}
