// Package descriptor loads job and config descriptors from disk.
//
// Both files are JSON by default; a .yaml or .yml extension selects YAML. Payloads
// written for the previous generation of the runner are recognised and upgraded to
// the canonical schema before decoding (see upgrade.go). A payload that mixes
// legacy and canonical keys for the same field is rejected rather than guessed at.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	apperrors "github.com/target/report-runner/internal/errors"
	"github.com/target/report-runner/internal/domain/model"
)

// Format is the encoding of a descriptor file.
type Format string

const (
	// FormatJSON is the default descriptor encoding.
	FormatJSON Format = "json"
	// FormatYAML is selected by a .yaml or .yml extension.
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the decoder for a descriptor path.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// legacyJobNamespace seeds ids derived for legacy job payloads, which never carried one.
var legacyJobNamespace = uuid.MustParse("6b0d2c4e-93a1-5f7e-8c1d-2a4f6e8b0c13")

// JobFile is a decoded job descriptor plus facts about how it was read.
type JobFile struct {
	Path string
	Job  model.JobDescriptor
	// Legacy is true when the payload used the previous schema and was upgraded.
	Legacy bool
	// DerivedID is true when the job id was computed from the payload contents.
	DerivedID bool
}

// ConfigFile is a decoded config descriptor plus facts about how it was read.
type ConfigFile struct {
	Path   string
	Config model.RunConfig
	Legacy bool
}

// LoadJob reads, upgrades and validates the job descriptor at path.
func LoadJob(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job descriptor: %w", err)
	}
	jf, err := ParseJob(data, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	jf.Path = path
	return jf, nil
}

// ParseJob decodes a job descriptor payload.
func ParseJob(data []byte, format Format) (*JobFile, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	legacy, err := isLegacyJob(doc)
	if err != nil {
		return nil, err
	}

	jf := &JobFile{Legacy: legacy}
	if legacy {
		doc, err = upgradeJob(doc)
		if err != nil {
			return nil, err
		}
		if id, _ := doc["id"].(string); strings.TrimSpace(id) == "" {
			doc["id"] = uuid.NewSHA1(legacyJobNamespace, data).String()
			jf.DerivedID = true
		}
	}

	var job model.JobDescriptor
	if err := remarshal(doc, &job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode job descriptor")
	}
	job = job.Clone()
	if err := job.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job descriptor")
	}
	jf.Job = job
	return jf, nil
}

// LoadRunConfig reads, upgrades and validates the config descriptor at path.
func LoadRunConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config descriptor: %w", err)
	}
	cf, err := ParseRunConfig(data, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	cf.Path = path
	return cf, nil
}

// ParseRunConfig decodes a config descriptor payload.
func ParseRunConfig(data []byte, format Format) (*ConfigFile, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	legacy, err := isLegacyConfig(doc)
	if err != nil {
		return nil, err
	}
	if legacy {
		if doc, err = upgradeConfig(doc); err != nil {
			return nil, err
		}
	}

	var cfg model.RunConfig
	if err := remarshal(doc, &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode config descriptor")
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid config descriptor")
	}
	return &ConfigFile{Config: cfg, Legacy: legacy}, nil
}

func decodeDocument(data []byte, format Format) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.Validation("descriptor is empty")
	}

	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse yaml descriptor")
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse json descriptor")
		}
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, apperrors.Validation("descriptor must be an object")
	}
	return doc, nil
}

// remarshal round-trips a generic document through JSON into a typed value so that
// YAML and JSON payloads share one set of decoding rules.
func remarshal(doc map[string]any, out any) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
