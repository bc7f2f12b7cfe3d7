// Package delivery decides how a rendered artifact reaches its recipients.
//
// Exactly one channel is chosen per artifact, first match wins:
//
//  1. object storage configured: upload and mail a time-limited link
//  2. artifact smaller than model.MaxAttachmentBytes: attach it to the email
//  3. otherwise: copy it to <ArchiveDir>/<job id>/ and tell the recipient
//
// Channel I/O errors never fail the job; they are reported in the result's
// Annotation and Err fields.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
)

// PlannerOptions groups dependencies for Planner.
type PlannerOptions struct {
	ArchiveDir string           // Required: root of the oversize archive
	Store      core.ObjectStore // Optional: required only for jobs that configure object storage
	Logger     *slog.Logger     // Optional: structured logger
}

// Planner routes artifacts.
type Planner struct {
	archiveDir string
	store      core.ObjectStore
	logger     *slog.Logger
}

// NewPlanner constructs a Planner. It panics if ArchiveDir is empty.
func NewPlanner(opts PlannerOptions) *Planner {
	if strings.TrimSpace(opts.ArchiveDir) == "" {
		panic("delivery: ArchiveDir is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		archiveDir: opts.ArchiveDir,
		store:      opts.Store,
		logger:     logger.With("component", "delivery"),
	}
}

// Route delivers the artifact at artifactPath through exactly one channel.
func (p *Planner) Route(
	ctx context.Context,
	artifactPath string,
	job model.JobDescriptor,
	storage *model.ObjectStorageConfig,
) model.DeliveryResult {
	name := filepath.Base(artifactPath)

	if storage.Configured() {
		return p.upload(ctx, artifactPath, name, job, *storage)
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		p.logger.ErrorContext(ctx, "artifact unreadable", "job_id", job.ID, "artifact", artifactPath, "error", err)
		return model.DeliveryResult{
			Channel:    model.ChannelAttachment,
			Annotation: fmt.Sprintf("The report %s was rendered but could not be read for delivery.", name),
			Err:        err,
		}
	}

	if info.Size() < model.MaxAttachmentBytes {
		p.logger.InfoContext(ctx, "artifact attached", "job_id", job.ID, "bytes", info.Size())
		return model.DeliveryResult{Channel: model.ChannelAttachment, AttachmentPath: artifactPath}
	}
	return p.archive(ctx, artifactPath, name, info.Size(), job)
}

func (p *Planner) upload(
	ctx context.Context,
	artifactPath, name string,
	job model.JobDescriptor,
	storage model.ObjectStorageConfig,
) model.DeliveryResult {
	res := model.DeliveryResult{Channel: model.ChannelUpload}
	if p.store == nil {
		res.Err = fmt.Errorf("object storage is configured for job %s but no uploader is available", job.ID)
		res.Annotation = uploadFailedText(name)
		p.logger.ErrorContext(ctx, "upload skipped", "job_id", job.ID, "error", res.Err)
		return res
	}

	receipt, err := p.store.Upload(ctx, core.UploadRequest{
		Storage: storage,
		Key:     job.ID.String() + "/" + name,
		Path:    artifactPath,
		Metadata: map[string]string{
			"original-filename": name,
			"job-id":            job.ID.String(),
			"recipients-to":     strings.Join(job.Email.To, ";"),
			"recipients-cc":     strings.Join(job.Email.CC, ";"),
		},
		Retention: model.UploadRetention,
	})
	if err == nil && receipt == nil {
		err = fmt.Errorf("upload of %s returned no receipt", name)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "upload failed", "job_id", job.ID, "container", storage.Container, "error", err)
		res.Err = err
		res.Annotation = uploadFailedText(name)
		return res
	}

	p.logger.InfoContext(ctx, "artifact uploaded", "job_id", job.ID, "expires_at", receipt.ExpiresAt)
	res.LinkText = receipt.Link
	res.Annotation = fmt.Sprintf("The report %s can be downloaded until %s:\n%s",
		name, receipt.ExpiresAt.Format("Monday, January 2, 2006"), receipt.Link)
	return res
}

func (p *Planner) archive(ctx context.Context, artifactPath, name string, size int64, job model.JobDescriptor) model.DeliveryResult {
	dest := filepath.Join(p.archiveDir, job.ID.String(), name)
	res := model.DeliveryResult{Channel: model.ChannelArchive, ArchivePath: dest}

	if err := copyFile(artifactPath, dest); err != nil {
		p.logger.ErrorContext(ctx, "archive copy failed", "job_id", job.ID, "dest", dest, "error", err)
		res.Err = err
		res.Annotation = fmt.Sprintf(
			"The report %s is too large to attach (%s) and could not be archived. Please contact your reporting administrator.",
			name, humanBytes(size))
		return res
	}

	p.logger.WarnContext(ctx, "artifact too large to attach; archived", "job_id", job.ID, "bytes", size, "dest", dest)
	res.Archived = true
	res.Annotation = fmt.Sprintf(
		"Warning: the report %s is too large to attach (%s; the limit is %s). It has been saved to %s.",
		name, humanBytes(size), humanBytes(model.MaxAttachmentBytes), dest)
	return res
}

func uploadFailedText(name string) string {
	return fmt.Sprintf("The report %s was rendered but could not be uploaded for sharing. Please contact your reporting administrator.", name)
}

func copyFile(src, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move archive file: %w", err)
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
