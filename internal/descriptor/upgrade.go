package descriptor

import (
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	apperrors "github.com/target/report-runner/internal/errors"
)

// keyPair names a legacy key and the canonical key that replaced it.
type keyPair struct {
	legacy    string
	canonical string
}

var legacyJobKeys = []keyPair{
	{legacy: "report.Filename", canonical: "report.filename"},
	{legacy: "report.parameter", canonical: "report.parameters"},
	{legacy: "report.output", canonical: "outputFormat"},
	{legacy: "email.custom.supressparameters", canonical: "email.custom.suppressParameters"},
}

var legacyConfigKeys = []keyPair{
	{legacy: "apiUri", canonical: "statusApiUri"},
	{legacy: "swiftCfg", canonical: "objectStorage"},
	{legacy: "smtp.address", canonical: "smtp.server"},
}

// jobProjection rewrites a legacy job payload into the canonical shape. Engine
// connection details (report.database, report.output.uri/authkey) have no
// canonical counterpart and are dropped.
const jobProjection = `{
  id: id,
  report: {
    filename: report.Filename || report.filename,
    parameters: report.parameter[*].{
      name: Name || name,
      selectedValues: text || selectedValues,
      multiSelect: MultipleValues
    }
  },
  outputFormat: report.output.format || report.output,
  email: {
    to: email.to,
    cc: email.cc,
    custom: email.custom && {
      subject: email.custom.subject,
      body: email.custom.body,
      suppressParameters: email.custom.supressparameters
    }
  }
}`

// configProjection rewrites a legacy config payload into the canonical shape.
const configProjection = `{
  smtp: {
    server: smtp.server || smtp.address,
    port: smtp.port,
    username: smtp.username,
    password: smtp.password,
    sender: smtp.sender,
    ssl: smtp.ssl
  },
  statusApiUri: apiUri,
  objectStorage: swiftCfg && {
    authUri: swiftCfg.authUri,
    userName: swiftCfg.userName,
    password: swiftCfg.password,
    tenantName: swiftCfg.tenantName,
    tenantId: swiftCfg.tenantId,
    region: swiftCfg.region,
    container: swiftCfg.swiftContainer
  },
  queue: queue
}`

func isLegacyJob(doc map[string]any) (bool, error) {
	legacy, err := detectLegacy(doc, legacyJobKeys)
	if err != nil {
		return false, err
	}
	normalizeFormat(doc, "outputFormat")
	return legacy, nil
}

func isLegacyConfig(doc map[string]any) (bool, error) {
	return detectLegacy(doc, legacyConfigKeys)
}

// detectLegacy reports whether any legacy key is present and fails when a legacy
// key and its canonical replacement are both set.
func detectLegacy(doc map[string]any, pairs []keyPair) (bool, error) {
	legacy := false
	for _, p := range pairs {
		hasLegacy, err := present(doc, p.legacy)
		if err != nil {
			return false, err
		}
		if !hasLegacy {
			continue
		}
		hasCanonical, err := present(doc, p.canonical)
		if err != nil {
			return false, err
		}
		if hasCanonical {
			return false, apperrors.ValidationField(p.canonical,
				"ambiguous descriptor: both legacy key "+strconv.Quote(p.legacy)+" and canonical key are set")
		}
		legacy = true
	}
	return legacy, nil
}

func present(doc map[string]any, path string) (bool, error) {
	v, err := jmespath.Search(path, doc)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "evaluate %q", path)
	}
	return v != nil, nil
}

func upgradeJob(doc map[string]any) (map[string]any, error) {
	out, err := project(jobProjection, doc)
	if err != nil {
		return nil, err
	}
	normalizeFormat(out, "outputFormat")

	report, _ := out["report"].(map[string]any)
	params, _ := report["parameters"].([]any)
	for _, raw := range params {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		values, _ := p["selectedValues"].([]any)
		p["multiSelect"] = legacyMultiSelect(p["multiSelect"], len(values))
	}
	return out, nil
}

func upgradeConfig(doc map[string]any) (map[string]any, error) {
	return project(configProjection, doc)
}

func project(expr string, doc map[string]any) (map[string]any, error) {
	res, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "upgrade legacy descriptor")
	}
	out, ok := res.(map[string]any)
	if !ok {
		return nil, apperrors.Validation("legacy descriptor did not upgrade to an object")
	}
	return out, nil
}

// normalizeFormat turns numeric export codes into their string form so that
// OutputFormat's text decoding can resolve them.
func normalizeFormat(doc map[string]any, key string) {
	switch v := doc[key].(type) {
	case float64:
		doc[key] = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		doc[key] = strconv.Itoa(v)
	}
}

// legacyMultiSelect interprets the old free-form MultipleValues flag. Several
// supplied values always imply a multi-select binding.
func legacyMultiSelect(raw any, valueCount int) bool {
	if valueCount > 1 {
		return true
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}
