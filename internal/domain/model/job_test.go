package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormat_Extension(t *testing.T) {
	want := map[OutputFormat]string{
		OutputFormatText:           ".txt",
		OutputFormatExcelLegacy:    ".xls",
		OutputFormatExcelLegacyAlt: ".xls",
		OutputFormatPDF:            ".pdf",
		OutputFormatCSV:            ".csv",
		OutputFormatExcelModern:    ".xlsx",
	}
	require.Len(t, OutputFormats(), len(want))
	for _, f := range OutputFormats() {
		assert.True(t, f.Valid(), f)
		assert.Equal(t, want[f], f.Extension(), f)
	}
	assert.False(t, OutputFormat("docx").Valid())
	assert.Empty(t, OutputFormat("docx").Extension())
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
	}{
		{"pdf", OutputFormatPDF},
		{" PDF ", OutputFormatPDF},
		{"excel-modern", OutputFormatExcelModern},
		{"9", OutputFormatText},
		{"4", OutputFormatExcelLegacy},
		{"8", OutputFormatExcelLegacyAlt},
		{"5", OutputFormatPDF},
		{"10", OutputFormatCSV},
		{"15", OutputFormatExcelModern},
		{"xlsx", OutputFormatExcelModern},
		{"xls", OutputFormatExcelLegacy},
		{"txt", OutputFormatText},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseOutputFormat("7")
	assert.Error(t, err)
}

func TestOutputFormat_UnmarshalJSON(t *testing.T) {
	var v struct {
		Format OutputFormat `json:"format"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"format":"15"}`), &v))
	assert.Equal(t, OutputFormatExcelModern, v.Format)
	assert.Error(t, json.Unmarshal([]byte(`{"format":"rtf"}`), &v))
}

func validJob() JobDescriptor {
	return JobDescriptor{
		ID: uuid.MustParse("7d7c9a90-3c4b-4c59-8d0e-7f4f2e7f3b21"),
		Report: Report{
			Filename: `\\share\reports\Quarterly Revenue.rpt`,
			Parameters: []Parameter{
				{Name: "Quarter", SelectedValues: []string{"Q1", "Q2"}, MultiSelect: true},
			},
		},
		OutputFormat: OutputFormatCSV,
		Email:        EmailSpec{To: []string{"ana@example.com"}, CC: []string{"ops@example.com"}},
	}
}

func TestJobDescriptor_Validate(t *testing.T) {
	require.NoError(t, validJob().Validate())

	tests := []struct {
		name   string
		mutate func(*JobDescriptor)
		want   error
	}{
		{"missing id", func(j *JobDescriptor) { j.ID = uuid.Nil }, ErrJobIDRequired},
		{"missing filename", func(j *JobDescriptor) { j.Report.Filename = " " }, ErrReportFileRequired},
		{"unnamed parameter", func(j *JobDescriptor) { j.Report.Parameters[0].Name = "" }, ErrParameterName},
		{"single-select with many values", func(j *JobDescriptor) { j.Report.Parameters[0].MultiSelect = false }, ErrSingleValueParameter},
		{"no recipients", func(j *JobDescriptor) { j.Email = EmailSpec{} }, ErrRecipientRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validJob().Clone()
			tt.mutate(&j)
			assert.ErrorIs(t, j.Validate(), tt.want)
		})
	}

	j := validJob()
	j.OutputFormat = "rtf"
	assert.Error(t, j.Validate())

	j = validJob()
	j.Email = EmailSpec{CC: []string{"only-cc@example.com"}}
	assert.NoError(t, j.Validate(), "cc-only recipients are enough")
}

func TestJobDescriptor_Naming(t *testing.T) {
	j := validJob()
	assert.Equal(t, "Quarterly Revenue", j.ReportStem())
	assert.Equal(t, "Quarterly Revenue.csv", j.ArtifactName())
	assert.Equal(t, "ana@example.com", j.Requestor())

	j.Report.Filename = "/srv/reports/daily.v2.rpt"
	j.OutputFormat = OutputFormatExcelLegacyAlt
	assert.Equal(t, "daily.v2.xls", j.ArtifactName())

	j.Email.To = nil
	assert.Empty(t, j.Requestor())
}

func TestJobDescriptor_CloneIsDeep(t *testing.T) {
	orig := validJob()
	orig.Email.Custom = &CustomEmail{Subject: "s"}
	c := orig.Clone()

	c.Report.Parameters[0].SelectedValues[0] = "changed"
	c.Email.To[0] = "changed"
	c.Email.Custom.Subject = "changed"

	assert.Equal(t, "Q1", orig.Report.Parameters[0].SelectedValues[0])
	assert.Equal(t, "ana@example.com", orig.Email.To[0])
	assert.Equal(t, "s", orig.Email.Custom.Subject)
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, "Processing", StateProcessing.String())
	assert.Equal(t, "StateCode(9)", StateCode(9).String())
	assert.False(t, StateCode(4).Valid())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.False(t, StateProcessing.Terminal())

	code, err := ParseStateCode(" completed ")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, code)
	_, err = ParseStateCode("done")
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]StateCode]bool{
		{StateQueued, StateProcessing}:    true,
		{StateQueued, StateFailed}:        true,
		{StateProcessing, StateCompleted}: true,
		{StateProcessing, StateFailed}:    true,
	}
	codes := []StateCode{StateQueued, StateProcessing, StateCompleted, StateFailed}
	for _, from := range codes {
		for _, to := range codes {
			assert.Equal(t, allowed[[2]StateCode{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStartTime(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, start, StartTime(Processing{Start: start}))
	assert.Equal(t, start, StartTime(Failed{Start: start}))
	assert.True(t, StartTime(Queued{}).IsZero())
}

func TestRenderOutcome_Validate(t *testing.T) {
	assert.NoError(t, RenderSucceeded("/w/export/a.pdf", " Title ").Validate())
	assert.Equal(t, "Title", RenderSucceeded("/w/export/a.pdf", " Title ").Title)
	assert.NoError(t, RenderFailed(FailureLoad, "missing").Validate())
	assert.ErrorIs(t, RenderOutcome{}.Validate(), ErrAmbiguousOutcome)
	assert.ErrorIs(t, RenderOutcome{ArtifactPath: "a", Failure: &RenderFailure{}}.Validate(), ErrAmbiguousOutcome)

	oom := RenderOutOfMemory("rss above limit")
	require.NotNil(t, oom.Failure)
	assert.True(t, oom.Failure.Kind.Infrastructure())
	assert.Contains(t, oom.Failure.Error(), "out of memory")
	assert.False(t, oom.Succeeded())
	assert.False(t, FailureValidation.Infrastructure())
}

func TestRenderRequest_Validate(t *testing.T) {
	req := RenderRequest{ReportPath: "/r.rpt", WorkingDir: "/w", Format: OutputFormatPDF}
	require.NoError(t, req.Validate())

	req.WorkingDir = ""
	assert.ErrorIs(t, req.Validate(), ErrRenderRequestInvalid)
	req.WorkingDir = "/w"
	req.Format = "rtf"
	assert.ErrorIs(t, req.Validate(), ErrRenderRequestInvalid)
}

func TestRunConfig_Validate(t *testing.T) {
	cfg := RunConfig{SMTP: SMTPConfig{Server: "smtp", Sender: "r@example.com"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.SMTP.SMTPPort())

	assert.ErrorIs(t, RunConfig{}.Validate(), ErrSMTPServerRequired)
	assert.ErrorIs(t, RunConfig{SMTP: SMTPConfig{Server: "smtp"}}.Validate(), ErrSMTPSenderRequired)

	var storage *ObjectStorageConfig
	assert.False(t, storage.Configured())
	assert.False(t, (&ObjectStorageConfig{Container: "c"}).Configured())
}

func TestRenderRequest_ArtifactPath(t *testing.T) {
	req := RenderRequest{
		ReportPath: `C:\reports\Sales Summary.rpt`,
		Format:     OutputFormatExcelModern,
		WorkingDir: "/work/report-1",
	}
	assert.Equal(t, "/work/report-1/export", req.ExportDir())
	assert.Equal(t, "/work/report-1/export/Sales Summary.xlsx", req.ArtifactPath())

	req.ReportPath = "/srv/templates/weekly.v2.rpt"
	req.Format = OutputFormatCSV
	assert.Equal(t, "/work/report-1/export/weekly.v2.csv", req.ArtifactPath())
}
