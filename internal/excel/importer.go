package excel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/rewatch/internal/videostore"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath    string // Path to the Excel or CSV file
	TitleColumn string // Column with the video title
	URLColumn   string // Column with the video URL
	NotesColumn string // Column with the notes
	SheetName   string // Name of the sheet to import
	StartRow    int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TitleColumn: "A",
		URLColumn:   "B",
		NotesColumn: "C",
		SheetName:   "Sheet1",
		StartRow:    2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// ImportVideos imports videos from an Excel or CSV file into the store.
// Each row becomes a new video with a fresh review schedule.
func ImportVideos(config ImportConfig, store *videostore.Store) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))

	if ext == ".csv" {
		return importFromCSV(config, store)
	}

	return importFromExcel(config, store)
}

// importFromExcel imports videos from an Excel file
func importFromExcel(config ImportConfig, store *videostore.Store) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	result := &ImportResult{
		Errors: make([]string, 0),
	}

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}

	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}

		result.TotalProcessed++

		if err := processRow(row, config, store, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}

	return result, nil
}

// importFromCSV imports videos from a CSV file. Columns follow the same
// order as the Excel defaults: title, url, notes.
func importFromCSV(config ImportConfig, store *videostore.Store) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{
		Errors: make([]string, 0),
	}

	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %v", err)
		}

		rowNum++

		// Skip header rows
		if rowNum < config.StartRow {
			continue
		}

		result.TotalProcessed++

		var title, url, notes string
		if len(row) > 0 {
			title = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			url = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			notes = strings.TrimSpace(row[2])
		}

		if err := addVideo(title, url, notes, store, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}

	return result, nil
}

// processRow processes a single row from Excel
func processRow(row []string, config ImportConfig, store *videostore.Store, result *ImportResult) error {
	var title, url, notes string

	// Check bounds for each column
	if colIdx := columnToIndex(config.TitleColumn); colIdx >= 0 && colIdx < len(row) {
		title = strings.TrimSpace(row[colIdx])
	}
	if colIdx := columnToIndex(config.URLColumn); colIdx >= 0 && colIdx < len(row) {
		url = strings.TrimSpace(row[colIdx])
	}
	if colIdx := columnToIndex(config.NotesColumn); colIdx >= 0 && colIdx < len(row) {
		notes = strings.TrimSpace(row[colIdx])
	}

	return addVideo(title, url, notes, store, result)
}

func addVideo(title, url, notes string, store *videostore.Store, result *ImportResult) error {
	if title == "" {
		// Пустые строки не считаем ошибкой
		result.Skipped++
		return nil
	}

	_, err := store.AddVideo(videostore.VideoInput{
		Title: title,
		URL:   url,
		Notes: notes,
	})
	if err != nil {
		if errors.Is(err, videostore.ErrTitleRequired) {
			result.Skipped++
			return nil
		}
		return fmt.Errorf("failed to create video: %v", err)
	}
	result.Created++
	return nil
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
