package model

import "time"

// DeliveryChannel is the mechanism used to get an artifact to its recipients.
type DeliveryChannel string

const (
	// ChannelUpload stores the artifact in object storage and mails a link.
	ChannelUpload DeliveryChannel = "upload"
	// ChannelAttachment attaches the artifact to the notification email.
	ChannelAttachment DeliveryChannel = "attachment"
	// ChannelArchive copies the artifact to the local archive when it is too large to attach.
	ChannelArchive DeliveryChannel = "archive"
)

const (
	// MaxAttachmentBytes is the exclusive upper bound for inline attachments (25 MiB).
	MaxAttachmentBytes int64 = 25 * 1024 * 1024
	// UploadRetention is how long uploaded artifacts and their shared links stay valid.
	UploadRetention = 7 * 24 * time.Hour
)

// DeliveryResult records which channel was used and what the recipient should be told.
type DeliveryResult struct {
	Channel        DeliveryChannel
	LinkText       string
	AttachmentPath string
	ArchivePath    string
	Archived       bool
	// Annotation is recipient-facing text appended to the email body.
	Annotation string
	// Err is set when the channel's I/O failed; the job still counts as completed.
	Err error
}

// Failed reports whether the chosen channel hit an I/O error.
func (r DeliveryResult) Failed() bool {
	return r.Err != nil
}
