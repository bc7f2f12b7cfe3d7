package renderengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Exit codes understood from an external engine command.
const (
	ExitOK         = 0
	ExitLoad       = 3
	ExitValidation = 4
)

const maxEngineMessage = 2048

// CommandEngine runs an external program per export. The program receives
//
//	<args...> <template> <format> <output>
//
// and the parameter bindings as a JSON array on stdin. Exit code 0 means success
// (stdout may carry {"title": "..."}), 3 a template load failure, 4 a rejected
// parameter; anything else is a fatal export error. Stderr becomes the message.
type CommandEngine struct {
	path string
	args []string
	env  []string
}

// NewCommandEngine parses a whitespace-separated command line.
func NewCommandEngine(cmdline string, env []string) (*CommandEngine, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("engine command is empty")
	}
	return &CommandEngine{path: fields[0], args: fields[1:], env: env}, nil
}

// Export runs the command once.
func (e *CommandEngine) Export(ctx context.Context, exp Export) (ExportResult, error) {
	params, err := json.Marshal(exp.Parameters)
	if err != nil {
		return ExportResult{}, ExportError("encode parameters", err)
	}

	args := append(append([]string{}, e.args...), exp.TemplatePath, string(exp.Format), exp.OutputPath)
	// #nosec G204 -- the engine command comes from operator configuration, not job input
	cmd := exec.CommandContext(ctx, e.path, args...)
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdin = bytes.NewReader(params)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	msg := engineMessage(stderr.String())
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return ExportResult{}, ExportError("the rendering engine could not be started", runErr)
		}
		switch exitErr.ExitCode() {
		case ExitLoad:
			return ExportResult{}, LoadError(fallback(msg, "the report template could not be loaded"), nil)
		case ExitValidation:
			return ExportResult{}, ValidationError(fallback(msg, "a report parameter was rejected"))
		default:
			return ExportResult{}, ExportError(
				fallback(msg, fmt.Sprintf("the rendering engine exited with code %d", exitErr.ExitCode())), nil)
		}
	}

	var res struct {
		Title string `json:"title"`
	}
	if out := bytes.TrimSpace(stdout.Bytes()); len(out) > 0 && out[0] == '{' {
		// A non-JSON banner on stdout is not an error; the title is optional.
		_ = json.Unmarshal(out, &res)
	}
	return ExportResult{Title: strings.TrimSpace(res.Title)}, nil
}

func engineMessage(stderr string) string {
	msg := strings.TrimSpace(stderr)
	if len(msg) > maxEngineMessage {
		msg = msg[len(msg)-maxEngineMessage:]
	}
	return msg
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
