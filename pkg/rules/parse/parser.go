package parse

import (
	"fmt"
	"os"
	"unicode/utf8"

	"mercator-hq/ganymede/pkg/rules"
)

// defaultMaxFileSize bounds rule files. Real rule files are a few
// kilobytes; anything near the limit is not a rule file.
const defaultMaxFileSize = 1 * 1024 * 1024

// Document is a parsed and validated rule file.
type Document struct {
	// Name identifies the rule file in logs and CLI output.
	Name string

	// Description is the optional free-text description.
	Description string

	// SourceFile is the path the document was read from, or the label
	// given to ParseBytes.
	SourceFile string

	// Rules holds the typed rules in definition order, ready for
	// rules.NewRuleSet.
	Rules []rules.Rule
}

// Parser parses YAML rule files into typed rules.
type Parser struct {
	maxFileSize int64
}

// NewParser creates a parser with default limits.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: defaultMaxFileSize,
	}
}

// WithMaxFileSize sets the maximum rule file size in bytes.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// ParseFile parses and validates the rule file at the given path. All
// structural and semantic problems are reported together as an
// *ErrorList; I/O and YAML syntax problems come back as a single
// *Error.
func (p *Parser) ParseFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to access file: %v", err),
			Location: Location{File: path},
		}
	}

	if info.Size() > p.maxFileSize {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("File size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
			Location: Location{File: path},
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to read file: %v", err),
			Location: Location{File: path},
		}
	}

	return p.ParseBytes(data, path)
}

// ParseBytes parses and validates rule file bytes. sourcePath only
// labels the locations in errors.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*Document, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  fmt.Sprintf("Data size %d exceeds maximum %d bytes", len(data), p.maxFileSize),
			Location: Location{File: sourcePath},
		}
	}

	if !utf8.Valid(data) {
		return nil, &Error{
			Type:     ErrorTypeIO,
			Message:  "File is not valid UTF-8",
			Location: Location{File: sourcePath},
		}
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, &Error{
			Type:       ErrorTypeSyntax,
			Message:    fmt.Sprintf("YAML parsing failed: %v", err),
			Location:   Location{File: sourcePath, Line: 1, Column: 1},
			Suggestion: "Check YAML syntax (indentation, colons, quotes)",
		}
	}

	builder := newBuilder(sourcePath)
	built := builder.buildDocument(doc)
	errors := builder.errors

	// The semantic pass only runs on structurally sound input, so one
	// malformed field does not cascade into misleading reports.
	if !errors.HasErrors() {
		validateRules(built, errors)
	}

	if errors.HasErrors() {
		addContext(errors, data)
		return nil, errors
	}

	out := make([]rules.Rule, len(built))
	for i := range built {
		out[i] = built[i].rule
	}

	return &Document{
		Name:        doc.Name,
		Description: doc.Description,
		SourceFile:  sourcePath,
		Rules:       out,
	}, nil
}
