package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrTooLarge reports a payload exceeding the configured size limit. The
// check happens before any parsing begins.
var ErrTooLarge = errors.New("document exceeds size limit")

// ErrUnsupportedFormat reports a payload whose format cannot be ingested.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Payload is one uploaded document before extraction.
type Payload struct {
	Name string
	Data []byte
}

// Extract converts a payload into plain text. maxBytes <= 0 disables the
// size check. A failed extraction rejects only this document; previously
// ingested documents are unaffected.
func Extract(payload Payload, maxBytes int64) (string, error) {
	if maxBytes > 0 && int64(len(payload.Data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(payload.Data), maxBytes)
	}

	switch DetectFormat(payload.Name) {
	case FormatText, FormatMarkdown:
		return normalizePlainText(string(payload.Data)), nil
	case FormatPDF:
		return extractPDF(payload.Data)
	case FormatCSV:
		return extractCSV(payload.Data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, payload.Name)
	}
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizePlainText(buf.String()), nil
}

func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}

	if len(records) == 0 {
		return "", nil
	}

	headers := records[0]
	rows := records[1:]

	builder := &strings.Builder{}
	for idx, row := range rows {
		if idx > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(formatCSVRow(headers, row, idx))
	}

	return normalizePlainText(builder.String()), nil
}

func formatCSVRow(headers, row []string, idx int) string {
	builder := &strings.Builder{}
	builder.WriteString(fmt.Sprintf("Row %d.", idx+1))

	limit := len(headers)
	if len(row) < limit {
		limit = len(row)
	}

	for i := 0; i < limit; i++ {
		header := strings.TrimSpace(headers[i])
		value := strings.TrimSpace(row[i])
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		builder.WriteString(" ")
		builder.WriteString(header)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteString(".")
	}

	return builder.String()
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
