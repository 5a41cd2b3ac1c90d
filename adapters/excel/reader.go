// Package excel loads task contexts from .xlsx or .csv files. The first row is
// the header: "id" and "category" are reserved, columns prefixed "input." go
// into the task input and every other column becomes a task attribute.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
	"gosplit/ports"
)

// Column conventions
const (
	ColumnID       = "id"
	ColumnCategory = "category"
	InputPrefix    = "input."
)

// TaskReader reads task contexts from Excel and CSV files
type TaskReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *internal.Logger
}

var _ ports.TaskSource = (*TaskReader)(nil)

// NewTaskReader picks the format from the file extension. sheet selects the
// worksheet for xlsx files; empty means the first one.
func NewTaskReader(filePath, sheet string, logger *internal.Logger) *TaskReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &TaskReader{filePath: filePath, fileType: fileType, sheet: sheet, logger: logger}
}

// LoadTasks reads every data row as a task
func (r *TaskReader) LoadTasks(ctx context.Context) ([]domain.TaskContext, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tasks, err := parseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.filePath, err)
	}
	r.logger.Info("Loaded %d tasks from %s in %.2fms", len(tasks), r.filePath, float64(time.Since(start).Nanoseconds())/1e6)
	return tasks, nil
}

func (r *TaskReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("Excel file has no worksheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *TaskReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// parseRows converts raw rows into tasks. Rows without an id get "row-N".
func parseRows(rows [][]string) ([]domain.TaskContext, error) {
	if len(rows) < 2 {
		return nil, core.NewValidationError("tasks", "file must have a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	tasks := make([]domain.TaskContext, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		task := domain.TaskContext{}
		for i, cell := range row {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			switch header := headers[i]; {
			case header == ColumnID:
				task.ID = core.TaskID(cell)
			case header == ColumnCategory:
				task.Category = cell
			case strings.HasPrefix(header, InputPrefix):
				if task.Input == nil {
					task.Input = make(map[string]interface{})
				}
				task.Input[strings.TrimPrefix(header, InputPrefix)] = cellValue(cell)
			case cell != "":
				if task.Attributes == nil {
					task.Attributes = make(map[string]string)
				}
				task.Attributes[header] = cell
			}
		}
		if task.ID == "" {
			task.ID = core.TaskID(fmt.Sprintf("row-%d", n+2))
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// cellValue keeps numbers numeric
func cellValue(cell string) interface{} {
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
