package utils

import (
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{".csv", ".xlsx"}, ".csv"))
	assert.False(t, Contains([]int{1, 2}, 3))
}

func TestSaveToExcel(t *testing.T) {
	df := dataframe.LoadRecords([][]string{{"Age", "Name"}, {"10", "ann"}, {"20", "bob"}},
		dataframe.DetectTypes(false))
	path := filepath.Join(t.TempDir(), "out.xlsx")

	require.NoError(t, SaveToExcel(df, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Age", "Name"}, {"10", "ann"}, {"20", "bob"}}, rows)
}
