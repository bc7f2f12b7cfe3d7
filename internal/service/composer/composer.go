// Package composer builds the notification email for a finished job.
package composer

import (
	"fmt"
	"html"
	"strings"

	"github.com/target/report-runner/internal/domain/model"
)

const defaultAdminContact = "your reporting administrator"

// Options configures a Composer.
type Options struct {
	// AdminContact is named when a template cannot be loaded.
	AdminContact string
}

// Composer turns a job, its render outcome and its delivery result into an EmailDraft.
// It performs no I/O.
type Composer struct {
	adminContact string
}

// New constructs a Composer.
func New(opts Options) *Composer {
	contact := strings.TrimSpace(opts.AdminContact)
	if contact == "" {
		contact = defaultAdminContact
	}
	return &Composer{adminContact: contact}
}

// Compose builds the draft. delivery is ignored when the render failed.
func (c *Composer) Compose(job model.JobDescriptor, outcome model.RenderOutcome, delivery model.DeliveryResult) model.EmailDraft {
	draft := model.EmailDraft{
		To:      append([]string(nil), job.Email.To...),
		CC:      append([]string(nil), job.Email.CC...),
		Subject: Subject(job, outcome),
	}

	var sections []string
	if custom := job.Email.Custom; custom != nil && strings.TrimSpace(custom.Body) != "" {
		sections = append(sections, strings.TrimSpace(custom.Body))
	}

	if outcome.Succeeded() {
		if listParameters(job) {
			if p := parameterListing(job.Report.Parameters); p != "" {
				sections = append(sections, p)
			}
		}
		if delivery.Failed() && delivery.Annotation == "" {
			sections = append(sections, "The report was rendered but could not be delivered.")
		}
		if delivery.Annotation != "" {
			sections = append(sections, delivery.Annotation)
		}
		draft.AttachmentPath = delivery.AttachmentPath
	} else {
		sections = append(sections, c.diagnostic(job, outcome.Failure))
	}

	draft.Body = toHTML(strings.Join(sections, "\n\n"))
	return draft
}

// Subject picks the custom subject, then the render title, then the template stem.
func Subject(job model.JobDescriptor, outcome model.RenderOutcome) string {
	if custom := job.Email.Custom; custom != nil {
		if s := strings.TrimSpace(custom.Subject); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(outcome.Title); s != "" {
		return s
	}
	return strings.TrimSpace(job.ReportStem())
}

func listParameters(job model.JobDescriptor) bool {
	return job.Email.Custom == nil || !job.Email.Custom.SuppressParameters
}

func parameterListing(params []model.Parameter) string {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		lines = append(lines, fmt.Sprintf("%s: %s", p.Name, strings.Join(p.SelectedValues, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (c *Composer) diagnostic(job model.JobDescriptor, f *model.RenderFailure) string {
	name := job.ReportStem()
	if f == nil {
		return fmt.Sprintf("The report %s could not be generated.", name)
	}
	switch f.Kind {
	case model.FailureLoad:
		return fmt.Sprintf("The report template %s could not be loaded. Please contact %s.", name, c.adminContact)
	case model.FailureValidation:
		return fmt.Sprintf("The report %s could not be generated because a parameter was rejected:\n%s", name, f.Detail)
	case model.FailureEngine:
		return fmt.Sprintf("The report %s could not be generated:\n%s", name, f.Detail)
	case model.FailureInterop:
		return fmt.Sprintf("The report %s could not be generated because the reporting service returned "+
			"an unexpected response:\n%s\nPlease retry later. If the problem persists, contact %s.",
			name, f.Detail, c.adminContact)
	case model.FailureIsolation:
		if f.OutOfMemory {
			return fmt.Sprintf("The report %s ran out of memory while it was being generated. "+
				"The operations team has been notified; try narrowing the parameters or retry later.", name)
		}
		return fmt.Sprintf("The report %s could not be generated because of a problem with the reporting service. "+
			"The operations team has been notified; please retry later.", name)
	default:
		return fmt.Sprintf("The report %s could not be generated:\n%s", name, f.Detail)
	}
}

// toHTML escapes text and turns line breaks into <br />.
func toHTML(text string) string {
	escaped := html.EscapeString(strings.ReplaceAll(text, "\r\n", "\n"))
	return strings.ReplaceAll(escaped, "\n", "<br />")
}
