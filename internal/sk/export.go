package sk

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"safekeep/internal/model"
)

// exportBatchSize is how many entries ExportCSV reads per query.
const exportBatchSize = 500

var csvHeader = []string{
	"Timestamp", "User", "Action", "Resource Type", "Resource ID",
	"IP Address", "Success", "Details",
}

// ExportCSV writes every entry matching filter to w as CSV, newest first,
// and returns the number of rows written. Limit and Offset are ignored.
func (a *AuditLogger) ExportCSV(w io.Writer, filter AuditFilter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("writing csv header: %w", err)
	}

	rows := 0
	filter.Limit = exportBatchSize
	for filter.Offset = 0; ; filter.Offset += exportBatchSize {
		entries, err := a.database.QueryAuditEntries(filter)
		if err != nil {
			return rows, fmt.Errorf("querying audit entries: %w", err)
		}
		for _, e := range entries {
			record, err := csvRecord(e)
			if err != nil {
				return rows, err
			}
			if err := cw.Write(record); err != nil {
				return rows, fmt.Errorf("writing csv row: %w", err)
			}
			rows++
		}
		if len(entries) < exportBatchSize {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flushing csv: %w", err)
	}
	return rows, nil
}

func csvRecord(e *model.AuditEntry) ([]string, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("encoding details of audit entry %s: %w", e.ID, err)
	}

	user := e.Username
	if user == "" {
		user = "Anonymous"
	}
	success := "No"
	if e.Success {
		success = "Yes"
	}

	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		user,
		e.Action.DisplayName(),
		e.ResourceType,
		e.ResourceID,
		e.IPAddress,
		success,
		string(details),
	}, nil
}
