package rolls

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// DruidsFromTextFile reads a plain-text file listing one DRUID per line.
// Blank lines and #-prefixed comments are skipped.
func DruidsFromTextFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read druids file: %w", err)
	}
	var druids []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		druids = append(druids, trimmed)
	}
	return druids, nil
}

// DruidsFromCSVFile reads the "Druid" column of a CSV file.
func DruidsFromCSVFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open druids csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse druids csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	column := -1
	for i, header := range records[0] {
		if strings.EqualFold(strings.TrimSpace(header), "Druid") {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("druids csv %q has no Druid column", path)
	}

	var druids []string
	for _, record := range records[1:] {
		if column >= len(record) {
			continue
		}
		druid := strings.TrimSpace(record[column])
		if druid == "" {
			continue
		}
		druids = append(druids, druid)
	}
	return druids, nil
}
