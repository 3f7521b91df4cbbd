// Package export renders storey plans to SVG and converts them to PDF
// or standalone HTML for printing and archiving.
package export

import (
	"errors"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatSVG  Format = "svg"
	FormatHTML Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	ProjectID string
	StoreyID  string // empty = default storey
	Format    Format
	Upload    bool // also push the artifact to object storage
}

// Result contains the export output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	ObjectURL string // set when the artifact was uploaded
}

var (
	// ErrPlanUnavailable indicates plan data could not be loaded for export.
	ErrPlanUnavailable = errors.New("export plan unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates the requested output format is unknown.
	ErrUnsupportedFormat = errors.New("export format unsupported")
)
