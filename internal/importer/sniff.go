package importer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// sniffLines bounds the preamble scanned for a Migros header row.
const sniffLines = 15

// dateHeaderTokens start the header row of Migros exports.
var dateHeaderTokens = []string{"Datum", "Buchungsdatum"}

// revolutHeaderTokens must all appear in the first line of a Revolut export.
var revolutHeaderTokens = []string{"started date", "completed date", "state"}

// Detection is the sniffer's verdict for one file.
type Detection struct {
	Format    string
	SubFormat string // delimited text only, "" when generic
}

// Sniff classifies a file by extension and, for delimited text, by content.
func Sniff(name string, content []byte) (Detection, error) {
	format, err := formatForExt(name)
	if err != nil {
		return Detection{}, err
	}
	det := Detection{Format: format}
	if format == FormatDelimited {
		det.SubFormat = sniffSubFormat(splitLines(decodeText(content)))
	}
	return det, nil
}

func formatForExt(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".qif":
		return FormatQIF, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	case ".xml":
		return FormatCAMT, nil
	case ".csv", ".tsv":
		return FormatDelimited, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrInvalidFileType)
}

func sniffSubFormat(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	if isRevolutHeader(lines[0]) {
		return SubFormatB
	}
	if findMigrosHeader(lines) >= 0 {
		return SubFormatA
	}
	return ""
}

func isRevolutHeader(line string) bool {
	lower := strings.ToLower(line)
	if !strings.ContainsAny(lower, ",\t") {
		return false
	}
	for _, tok := range revolutHeaderTokens {
		if !strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}

// findMigrosHeader returns the index of the header row within the first
// sniffLines lines, or -1.
func findMigrosHeader(lines []string) int {
	for i, line := range lines {
		if i >= sniffLines {
			break
		}
		if isDateHeaderCell(firstCell(line)) {
			return i
		}
	}
	return -1
}

func isDateHeaderCell(cell string) bool {
	for _, tok := range dateHeaderTokens {
		if strings.EqualFold(cell, tok) {
			return true
		}
	}
	return false
}

func firstCell(line string) string {
	if i := strings.IndexAny(line, ";,\t"); i >= 0 {
		line = line[:i]
	}
	return strings.Trim(strings.TrimSpace(line), `"`)
}
