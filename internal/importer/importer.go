// Package importer turns bank export files into normalized transactions.
//
// The file extension selects the format family. Delimited text is further
// sniffed for the two Swiss bank dialects before falling back to the
// configurable generic parser.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/cleared-dev/reconcile/internal/model"
)

// ErrInvalidFileType is returned for extensions no parser handles.
var ErrInvalidFileType = errors.New("invalid file type")

// Format families selected by extension.
const (
	FormatQIF       = "qif"
	FormatOFX       = "ofx"
	FormatCAMT      = "camt"
	FormatDelimited = "csv"
)

// Swiss bank sub-formats of delimited text.
const (
	SubFormatAuto = "auto"
	SubFormatA    = "A" // Migros-style export with preamble and Saldo row
	SubFormatB    = "B" // Revolut-style multi-currency export
)

// Parser names as registered in the default registry.
const (
	parserMigros  = "migros"
	parserRevolut = "revolut"
)

// ColumnMapping names the generic CSV columns. Without a header row the
// names are positional: "0", "1", ...
type ColumnMapping struct {
	Date    string
	Payee   string
	Notes   string
	Amount  string
	Inflow  string
	Outflow string
}

// Options controls parsing. Swiss parsers only honor ImportNotes.
type Options struct {
	Delimiter                  string
	HasHeaderRow               bool
	SkipStartLines             int
	SkipEndLines               int
	FallbackMissingPayeeToMemo bool
	ImportNotes                bool
	SwissBankFormat            string // "auto", "A", "B" or "" for the generic path
	DateFormat                 string // Go layout, empty tries the common ones
	Columns                    ColumnMapping
}

// DefaultOptions returns the options used when the caller sets nothing.
func DefaultOptions() Options {
	return Options{
		HasHeaderRow:    true,
		ImportNotes:     true,
		SwissBankFormat: SubFormatAuto,
		Columns: ColumnMapping{
			Date:   "date",
			Payee:  "payee",
			Notes:  "notes",
			Amount: "amount",
		},
	}
}

// ParseError is one user-facing problem plus its technical detail.
type ParseError struct {
	Message  string
	Internal string
}

func (e ParseError) Error() string {
	if e.Internal == "" {
		return e.Message
	}
	return e.Message + ": " + e.Internal
}

// Metadata carries file-level facts some formats report.
type Metadata struct {
	BankSaldo  *int64
	BankFormat string
	Currencies []string
}

// Result is what every parser returns.
type Result struct {
	Errors       []ParseError
	Transactions []model.Transaction
	Metadata     *Metadata
}

// Parser converts file content into normalized transactions.
type Parser interface {
	Parse(content []byte, opts Options) Result
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&QIFParser{})
	r.Register(&OFXParser{})
	r.Register(&CAMTParser{})
	r.Register(&CSVParser{})
	r.Register(&MigrosParser{})
	r.Register(&RevolutParser{})
	return r
}

// ParseFile reads path and parses it with the default registry.
func ParseFile(path string, opts Options) Result {
	content, err := os.ReadFile(path)
	if err != nil {
		return failed("could not read file", err)
	}
	return DefaultRegistry().ParseContent(filepath.Base(path), content, opts)
}

// ParseContent sniffs name and content and dispatches to a parser.
func (r *Registry) ParseContent(name string, content []byte, opts Options) Result {
	det, err := Sniff(name, content)
	if err != nil {
		return failed("invalid file type", err)
	}

	key := det.Format
	if det.Format == FormatDelimited {
		if opts.Delimiter == "" && strings.EqualFold(filepath.Ext(name), ".tsv") {
			opts.Delimiter = "\t"
		}
		switch opts.SwissBankFormat {
		case SubFormatAuto:
			key = subFormatParser(det.SubFormat)
		case SubFormatA, SubFormatB:
			key = subFormatParser(opts.SwissBankFormat)
		}
	}

	p := r.Get(key)
	if p == nil {
		return failed("no parser registered", fmt.Errorf("format %q", key))
	}
	return p.Parse(content, opts)
}

func subFormatParser(sub string) string {
	switch sub {
	case SubFormatA:
		return parserMigros
	case SubFormatB:
		return parserRevolut
	}
	return FormatDelimited
}

func failed(msg string, err error) Result {
	return Result{Errors: []ParseError{{Message: msg, Internal: err.Error()}}}
}

func (res *Result) addError(msg string, err error) {
	pe := ParseError{Message: msg}
	if err != nil {
		pe.Internal = err.Error()
	}
	res.Errors = append(res.Errors, pe)
}

// decodeText strips a UTF-8 BOM and transcodes Windows-1252 exports.
func decodeText(content []byte) string {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return string(content)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

// splitLines splits text on any newline convention, dropping a final empty line.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
