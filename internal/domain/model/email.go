package model

import "slices"

// EmailDraft is a fully composed notification ready for the transport.
type EmailDraft struct {
	To             []string
	CC             []string
	Subject        string
	Body           string // HTML
	AttachmentPath string
}

// HasAttachment reports whether the draft carries a file.
func (d EmailDraft) HasAttachment() bool {
	return d.AttachmentPath != ""
}

// Recipients returns all addresses the draft will reach.
func (d EmailDraft) Recipients() []string {
	return append(slices.Clone(d.To), d.CC...)
}
