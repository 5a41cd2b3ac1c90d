package excel

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gosplit/domain/core"
	"gosplit/internal"
)

var quiet = internal.NewLoggerTo(io.Discard, internal.LogLevelError)

func TestLoadTasks_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"ID", "Category", "task_complexity", "input.prompt", "input.max_tokens"},
		{"t1", "DEVELOPMENT_EXPERTS", "COMPLEX", "write a parser", 512},
		{"", "USER_EXPERIENCE", "", "tidy the form", 128},
		{"", "", "", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tasks, err := NewTaskReader(path, "", quiet).LoadTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, core.TaskID("t1"), tasks[0].ID)
	assert.Equal(t, "DEVELOPMENT_EXPERTS", tasks[0].Category)
	assert.Equal(t, "COMPLEX", tasks[0].Attributes["task_complexity"])
	assert.Equal(t, "write a parser", tasks[0].Input["prompt"])
	assert.Equal(t, 512.0, tasks[0].Input["max_tokens"])

	assert.Equal(t, core.TaskID("row-3"), tasks[1].ID)
	assert.Nil(t, tasks[1].Attributes)
}

func TestLoadTasks_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,category,cost_preference\na,BUSINESS_LOGIC,COST_OPTIMIZED\nb,BUSINESS_LOGIC\n"), 0o600))

	tasks, err := NewTaskReader(path, "", quiet).LoadTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "COST_OPTIMIZED", tasks[0].Attributes["cost_preference"])
	assert.Empty(t, tasks[1].Attributes)
}

func TestLoadTasks_Errors(t *testing.T) {
	_, err := NewTaskReader(filepath.Join(t.TempDir(), "missing.csv"), "", quiet).LoadTasks(context.Background())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "header.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,category\n"), 0o600))
	_, err = NewTaskReader(path, "", quiet).LoadTasks(context.Background())
	assert.True(t, core.IsValidationError(err))
}
