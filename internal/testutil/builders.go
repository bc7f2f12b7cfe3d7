package testutil

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/domain/model"
)

// DefaultJobID is the id used by NewJob unless overridden.
var DefaultJobID = uuid.MustParse("9a3c1f7e-52b4-4d8a-b6e1-0c2f4a6d8e10")

// JobBuilder provides a fluent interface for building JobDescriptor values for testing.
type JobBuilder struct {
	job model.JobDescriptor
}

// NewJob creates a JobBuilder with sensible defaults: a PDF render of
// /reports/Monthly Sales.rpt mailed to one recipient.
func NewJob() *JobBuilder {
	return &JobBuilder{job: model.JobDescriptor{
		ID:           DefaultJobID,
		Report:       model.Report{Filename: "/reports/Monthly Sales.rpt"},
		OutputFormat: model.OutputFormatPDF,
		Email:        model.EmailSpec{To: []string{"requester@example.com"}},
	}}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id uuid.UUID) *JobBuilder {
	b.job.ID = id
	return b
}

// WithReport sets the template path.
func (b *JobBuilder) WithReport(filename string) *JobBuilder {
	b.job.Report.Filename = filename
	return b
}

// WithFormat sets the output format.
func (b *JobBuilder) WithFormat(f model.OutputFormat) *JobBuilder {
	b.job.OutputFormat = f
	return b
}

// WithParameter appends a parameter binding. More than one value makes it multi-select.
func (b *JobBuilder) WithParameter(name string, values ...string) *JobBuilder {
	b.job.Report.Parameters = append(b.job.Report.Parameters, model.Parameter{
		Name:           name,
		SelectedValues: values,
		MultiSelect:    len(values) > 1,
	})
	return b
}

// WithRecipients replaces the to and cc lists.
func (b *JobBuilder) WithRecipients(to, cc []string) *JobBuilder {
	b.job.Email.To = to
	b.job.Email.CC = cc
	return b
}

// WithCustomEmail sets the custom subject/body block.
func (b *JobBuilder) WithCustomEmail(subject, body string, suppressParameters bool) *JobBuilder {
	b.job.Email.Custom = &model.CustomEmail{Subject: subject, Body: body, SuppressParameters: suppressParameters}
	return b
}

// Build returns a copy of the descriptor.
func (b *JobBuilder) Build() model.JobDescriptor {
	return b.job.Clone()
}

// RunConfig returns a minimal valid config descriptor without object storage.
func RunConfig() model.RunConfig {
	return model.RunConfig{
		SMTP: model.SMTPConfig{Server: "smtp.example.com", Port: 25, Sender: "reports@example.com"},
	}
}

// WriteArtifact creates a file of size bytes under dir and returns its path.
func WriteArtifact(t TestingTB, dir, name string, size int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir artifact dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("size artifact: %v", err)
	}
	return path
}
