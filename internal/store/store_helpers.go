package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id            string
		title         string
		authorsJSON   sql.NullString
		categoryJSON  sql.NullString
		published     sql.NullString
		sourceUpdated sql.NullString
		abstract      sql.NullString
		pdfURL        sql.NullString
		source        string
		statusStr     string
		stage1        sql.NullString
		stage2        sql.NullString
		errorMessage  sql.NullString
		pdfPath       sql.NullString
		textChars     sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&authorsJSON,
		&categoryJSON,
		&published,
		&sourceUpdated,
		&abstract,
		&pdfURL,
		&source,
		&statusStr,
		&stage1,
		&stage2,
		&errorMessage,
		&pdfPath,
		&textChars,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:            id,
		Title:         title,
		Published:     published.String,
		SourceUpdated: sourceUpdated.String,
		Abstract:      abstract.String,
		PDFURL:        pdfURL.String,
		Source:        source,
		Status:        Status(statusStr),
		Stage1JSON:    stage1.String,
		Stage2JSON:    stage2.String,
		ErrorMessage:  errorMessage.String,
		PDFPath:       pdfPath.String,
		TextChars:     textChars.Int64,
	}
	if authorsJSON.Valid && authorsJSON.String != "" {
		_ = json.Unmarshal([]byte(authorsJSON.String), &record.Authors)
	}
	if categoryJSON.Valid && categoryJSON.String != "" {
		_ = json.Unmarshal([]byte(categoryJSON.String), &record.Categories)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
