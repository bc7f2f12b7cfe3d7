// Package model defines the core data types shared by the report pipeline.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// OutputFormat identifies the artifact format requested for a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type OutputFormat string

const (
	// OutputFormatText renders plain text.
	OutputFormatText OutputFormat = "text"
	// OutputFormatExcelLegacy renders a pre-2010 Excel workbook.
	OutputFormatExcelLegacy OutputFormat = "excel-legacy"
	// OutputFormatExcelLegacyAlt renders a pre-2010 Excel workbook using record layout.
	OutputFormatExcelLegacyAlt OutputFormat = "excel-legacy-alt"
	// OutputFormatPDF renders a portable document.
	OutputFormatPDF OutputFormat = "pdf"
	// OutputFormatCSV renders comma-separated values.
	OutputFormatCSV OutputFormat = "csv"
	// OutputFormatExcelModern renders a 2010+ Excel workbook.
	OutputFormatExcelModern OutputFormat = "excel-modern"
)

// formatExtensions is the static format → file extension table.
var formatExtensions = map[OutputFormat]string{
	OutputFormatText:           ".txt",
	OutputFormatExcelLegacy:    ".xls",
	OutputFormatExcelLegacyAlt: ".xls",
	OutputFormatPDF:            ".pdf",
	OutputFormatCSV:            ".csv",
	OutputFormatExcelModern:    ".xlsx",
}

// legacyFormatAliases maps numeric export codes and short names used by older job payloads.
var legacyFormatAliases = map[string]OutputFormat{
	"9":    OutputFormatText,
	"4":    OutputFormatExcelLegacy,
	"8":    OutputFormatExcelLegacyAlt,
	"5":    OutputFormatPDF,
	"10":   OutputFormatCSV,
	"15":   OutputFormatExcelModern,
	"txt":  OutputFormatText,
	"xls":  OutputFormatExcelLegacy,
	"xlsx": OutputFormatExcelModern,
}

// OutputFormats returns every supported format in declaration order.
func OutputFormats() []OutputFormat {
	return []OutputFormat{
		OutputFormatText,
		OutputFormatExcelLegacy,
		OutputFormatExcelLegacyAlt,
		OutputFormatPDF,
		OutputFormatCSV,
		OutputFormatExcelModern,
	}
}

// Valid returns true if the format is one of the supported formats.
func (f OutputFormat) Valid() bool {
	_, ok := formatExtensions[f]
	return ok
}

// Extension returns the file extension (with leading dot) for the format,
// or an empty string for unknown formats.
func (f OutputFormat) Extension() string {
	return formatExtensions[f]
}

// ParseOutputFormat resolves canonical names, legacy export codes and legacy short names.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if f := OutputFormat(v); f.Valid() {
		return f, nil
	}
	if f, ok := legacyFormatAliases[v]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid output format: %q", raw)
}

// UnmarshalText implements encoding.TextUnmarshaler so descriptors may carry legacy codes.
func (f *OutputFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseOutputFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Parameter is a single report parameter binding.
type Parameter struct {
	Name           string   `json:"name"           yaml:"name"`
	SelectedValues []string `json:"selectedValues" yaml:"selectedValues"`
	MultiSelect    bool     `json:"multiSelect"    yaml:"multiSelect"`
}

// Report references the template to render and its parameter bindings.
type Report struct {
	Filename   string      `json:"filename"   yaml:"filename"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

// CustomEmail overrides the default notification subject and body.
type CustomEmail struct {
	Subject            string `json:"subject"            yaml:"subject"`
	Body               string `json:"body"               yaml:"body"`
	SuppressParameters bool   `json:"suppressParameters" yaml:"suppressParameters"`
}

// EmailSpec lists the requester-facing recipients of a job.
type EmailSpec struct {
	To     []string     `json:"to"               yaml:"to"`
	CC     []string     `json:"cc"               yaml:"cc"`
	Custom *CustomEmail `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// JobDescriptor is the canonical, immutable description of one report job.
type JobDescriptor struct {
	ID           uuid.UUID    `json:"id"           yaml:"id"`
	Report       Report       `json:"report"       yaml:"report"`
	OutputFormat OutputFormat `json:"outputFormat" yaml:"outputFormat"`
	Email        EmailSpec    `json:"email"        yaml:"email"`
}

// Descriptor validation errors.
var (
	ErrJobIDRequired        = errors.New("job id is required")
	ErrReportFileRequired   = errors.New("report filename is required")
	ErrParameterName        = errors.New("parameter name is required")
	ErrSingleValueParameter = errors.New("single-select parameter has more than one value")
	ErrRecipientRequired    = errors.New("at least one recipient is required")
)

// Validate checks the descriptor invariants required before a job can run.
func (j JobDescriptor) Validate() error {
	if j.ID == uuid.Nil {
		return ErrJobIDRequired
	}
	if strings.TrimSpace(j.Report.Filename) == "" {
		return ErrReportFileRequired
	}
	if !j.OutputFormat.Valid() {
		return fmt.Errorf("invalid output format: %q", j.OutputFormat)
	}
	for _, p := range j.Report.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return ErrParameterName
		}
		if !p.MultiSelect && len(p.SelectedValues) > 1 {
			return fmt.Errorf("%w: %s", ErrSingleValueParameter, p.Name)
		}
	}
	if len(j.Email.To)+len(j.Email.CC) == 0 {
		return ErrRecipientRequired
	}
	return nil
}

// ReportStem returns the template filename without directory or extension.
func (j JobDescriptor) ReportStem() string {
	base := filepath.Base(strings.ReplaceAll(j.Report.Filename, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactName returns the output file name: the template stem with the format extension.
func (j JobDescriptor) ArtifactName() string {
	return j.ReportStem() + j.OutputFormat.Extension()
}

// Requestor returns the first primary recipient, used as the requesting user on status records.
func (j JobDescriptor) Requestor() string {
	if len(j.Email.To) > 0 {
		return j.Email.To[0]
	}
	return ""
}

// Clone returns a deep copy so callers never share slices with the loaded descriptor.
func (j JobDescriptor) Clone() JobDescriptor {
	out := j
	out.Report.Parameters = make([]Parameter, len(j.Report.Parameters))
	for i, p := range j.Report.Parameters {
		p.SelectedValues = slices.Clone(p.SelectedValues)
		out.Report.Parameters[i] = p
	}
	out.Email.To = slices.Clone(j.Email.To)
	out.Email.CC = slices.Clone(j.Email.CC)
	if j.Email.Custom != nil {
		c := *j.Email.Custom
		out.Email.Custom = &c
	}
	return out
}
