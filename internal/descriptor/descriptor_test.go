package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
)

const canonicalJob = `{
  "id": "0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11",
  "report": {
    "filename": "C:\\reports\\Sales Summary.rpt",
    "parameters": [
      {"name": "Region", "selectedValues": ["North", "South"], "multiSelect": true},
      {"name": "Year", "selectedValues": ["2024"]}
    ]
  },
  "outputFormat": "pdf",
  "email": {
    "to": ["ana@example.com"],
    "cc": ["ops@example.com"],
    "custom": {"subject": "Monthly sales", "body": "See attached.", "suppressParameters": true}
  }
}`

const legacyJob = `{
  "report": {
    "Filename": "/srv/reports/inventory.rpt",
    "parameter": [
      {"Name": "Store", "MultipleValues": "false", "text": ["0042"]},
      {"Name": "Dept", "MultipleValues": "true", "text": ["10"]},
      {"Name": "Class", "text": ["A", "B"]}
    ],
    "database": {"type": "odbc", "resource": "dsn", "password": "x"},
    "output": "xlsx"
  },
  "email": {
    "to": ["ana@example.com"],
    "custom": {"subject": "Inventory", "supressparameters": true}
  }
}`

func TestParseJob_Canonical(t *testing.T) {
	jf, err := ParseJob([]byte(canonicalJob), FormatJSON)
	require.NoError(t, err)

	assert.False(t, jf.Legacy)
	assert.False(t, jf.DerivedID)
	assert.Equal(t, uuid.MustParse("0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11"), jf.Job.ID)
	assert.Equal(t, model.OutputFormatPDF, jf.Job.OutputFormat)
	assert.Equal(t, "Sales Summary.pdf", jf.Job.ArtifactName())
	require.Len(t, jf.Job.Report.Parameters, 2)
	assert.Equal(t, []string{"North", "South"}, jf.Job.Report.Parameters[0].SelectedValues)
	require.NotNil(t, jf.Job.Email.Custom)
	assert.True(t, jf.Job.Email.Custom.SuppressParameters)
}

func TestParseJob_LegacyUpgrade(t *testing.T) {
	jf, err := ParseJob([]byte(legacyJob), FormatJSON)
	require.NoError(t, err)

	assert.True(t, jf.Legacy)
	assert.True(t, jf.DerivedID)
	assert.NotEqual(t, uuid.Nil, jf.Job.ID)
	assert.Equal(t, "/srv/reports/inventory.rpt", jf.Job.Report.Filename)
	assert.Equal(t, model.OutputFormatExcelModern, jf.Job.OutputFormat)

	params := jf.Job.Report.Parameters
	require.Len(t, params, 3)
	assert.Equal(t, model.Parameter{Name: "Store", SelectedValues: []string{"0042"}}, params[0])
	assert.True(t, params[1].MultiSelect)
	assert.True(t, params[2].MultiSelect, "several values imply multi-select")

	require.NotNil(t, jf.Job.Email.Custom)
	assert.Equal(t, "Inventory", jf.Job.Email.Custom.Subject)
	assert.True(t, jf.Job.Email.Custom.SuppressParameters)
}

func TestParseJob_LegacyIDIsDeterministic(t *testing.T) {
	a, err := ParseJob([]byte(legacyJob), FormatJSON)
	require.NoError(t, err)
	b, err := ParseJob([]byte(legacyJob), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, a.Job.ID, b.Job.ID)
}

func TestParseJob_LegacyOutputVariants(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   model.OutputFormat
	}{
		{name: "numeric code", output: `15`, want: model.OutputFormatExcelModern},
		{name: "string code", output: `"10"`, want: model.OutputFormatCSV},
		{name: "object with format", output: `{"format": "pdf", "uri": "x", "authkey": "y"}`, want: model.OutputFormatPDF},
		{name: "object with code", output: `{"format": 8}`, want: model.OutputFormatExcelLegacyAlt},
		{name: "short name", output: `"xls"`, want: model.OutputFormatExcelLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"id":"0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11","report":{"Filename":"r.rpt","output":` +
				tt.output + `},"email":{"to":["a@example.com"]}}`
			jf, err := ParseJob([]byte(payload), FormatJSON)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jf.Job.OutputFormat)
			assert.False(t, jf.DerivedID, "an explicit id is kept")
		})
	}
}

func TestParseJob_RejectsAmbiguousPayload(t *testing.T) {
	payload := `{
	  "id": "0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11",
	  "report": {"filename": "r.rpt", "output": "pdf"},
	  "outputFormat": "csv",
	  "email": {"to": ["a@example.com"]}
	}`
	_, err := ParseJob([]byte(payload), FormatJSON)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "outputFormat", apperrors.GetField(err))
}

func TestParseJob_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: "  "},
		{name: "not an object", payload: `["a"]`},
		{name: "malformed", payload: `{"id":`},
		{name: "missing id", payload: `{"report":{"filename":"r.rpt"},"outputFormat":"pdf","email":{"to":["a@example.com"]}}`},
		{name: "unknown format", payload: `{"id":"0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11","report":{"filename":"r.rpt"},"outputFormat":"docx","email":{"to":["a@example.com"]}}`},
		{name: "no recipients", payload: `{"id":"0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11","report":{"filename":"r.rpt"},"outputFormat":"pdf","email":{}}`},
		{name: "single-select with two values", payload: `{"id":"0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11","report":{"filename":"r.rpt","parameters":[{"name":"p","selectedValues":["1","2"]}]},"outputFormat":"pdf","email":{"to":["a@example.com"]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJob([]byte(tt.payload), FormatJSON)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestLoadJob_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yml")
	content := `id: 0b6f1e8e-3a55-4d36-9e6b-7f0b7f6f8a11
report:
  filename: weekly.rpt
  parameters:
    - name: Week
      selectedValues: ["32"]
outputFormat: 9
email:
  to: [ana@example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	jf, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, path, jf.Path)
	assert.Equal(t, model.OutputFormatText, jf.Job.OutputFormat)
	assert.Equal(t, "weekly.txt", jf.Job.ArtifactName())
}

func TestLoadJob_MissingFile(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseRunConfig_Canonical(t *testing.T) {
	payload := `{
	  "smtp": {"server": "smtp.example.com", "port": 587, "sender": "reports@example.com"},
	  "statusApiUri": "http://status.internal:45732/api",
	  "objectStorage": {"userName": "svc", "password": "p", "region": "us-east-1", "container": "reports"}
	}`
	cf, err := ParseRunConfig([]byte(payload), FormatJSON)
	require.NoError(t, err)
	assert.False(t, cf.Legacy)
	assert.Equal(t, 587, cf.Config.SMTP.SMTPPort())
	assert.True(t, cf.Config.ObjectStorage.Configured())
	assert.Nil(t, cf.Config.Queue)
}

func TestParseRunConfig_LegacyUpgrade(t *testing.T) {
	payload := `{
	  "smtp": {"address": "relay.example.com", "sender": "reports@example.com", "ssl": true},
	  "queue": {"type": "rabbitmq", "name": "report-events"},
	  "apiUri": "http://localhost:45732/api",
	  "swiftCfg": {"authUri": "https://auth", "userName": "svc", "password": "p", "tenantName": "t", "swiftContainer": "exports"}
	}`
	cf, err := ParseRunConfig([]byte(payload), FormatJSON)
	require.NoError(t, err)

	assert.True(t, cf.Legacy)
	assert.Equal(t, "relay.example.com", cf.Config.SMTP.Server)
	assert.Equal(t, 465, cf.Config.SMTP.SMTPPort())
	assert.Equal(t, "http://localhost:45732/api", cf.Config.StatusAPIURI)
	require.NotNil(t, cf.Config.ObjectStorage)
	assert.Equal(t, "exports", cf.Config.ObjectStorage.Container)
	require.NotNil(t, cf.Config.Queue)
	assert.Equal(t, "report-events", cf.Config.Queue.Name)
}

func TestParseRunConfig_Errors(t *testing.T) {
	_, err := ParseRunConfig([]byte(`{"apiUri":"a","statusApiUri":"b","smtp":{"server":"s","sender":"x@example.com"}}`), FormatJSON)
	require.Error(t, err)
	assert.Equal(t, "statusApiUri", apperrors.GetField(err))

	_, err = ParseRunConfig([]byte(`{"smtp":{"server":"s"}}`), FormatJSON)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSMTPSenderRequired)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("/x/job.YAML"))
	assert.Equal(t, FormatYAML, FormatFromPath("job.yml"))
	assert.Equal(t, FormatJSON, FormatFromPath("job.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("job"))
}
