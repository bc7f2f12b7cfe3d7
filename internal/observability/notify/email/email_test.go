package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/report-runner/internal/domain/model"
	"github.com/target/report-runner/internal/observability/notify"
)

type captureSender struct {
	drafts []model.EmailDraft
	err    error
}

func (c *captureSender) Send(_ context.Context, d model.EmailDraft) error {
	c.drafts = append(c.drafts, d)
	return c.err
}

func TestNewSink_Validation(t *testing.T) {
	_, err := NewSink(nil, []string{"oncall@example.com"})
	require.Error(t, err)

	_, err = NewSink(&captureSender{}, []string{" ", ""})
	require.Error(t, err)
}

func TestSendJobFailure_ComposesAlert(t *testing.T) {
	sender := &captureSender{}
	sink, err := NewSink(sender, []string{" oncall@example.com ", "dba@example.com"})
	require.NoError(t, err)

	err = sink.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:       "abc",
		ReportName:  "Inventory",
		FailureKind: "isolation",
		OutOfMemory: true,
		Error:       "rss 3GiB > limit <2GiB>",
		Metadata:    map[string]string{"pid": "4242"},
	})
	require.NoError(t, err)
	require.Len(t, sender.drafts, 1)

	d := sender.drafts[0]
	assert.Equal(t, []string{"oncall@example.com", "dba@example.com"}, d.To)
	assert.Equal(t, "[CRITICAL] Report job abc (Inventory) failed: out of memory", d.Subject)
	assert.Contains(t, d.Body, "Out of memory: true<br />")
	assert.Contains(t, d.Body, "rss 3GiB &gt; limit &lt;2GiB&gt;")
	assert.Contains(t, d.Body, "pid: 4242")
	assert.False(t, d.HasAttachment())
}

func TestSendJobFailure_WrapsTransportError(t *testing.T) {
	boom := errors.New("smtp down")
	sink, err := NewSink(&captureSender{err: boom}, []string{"oncall@example.com"})
	require.NoError(t, err)

	err = sink.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "x"})
	require.ErrorIs(t, err, boom)
}
