package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// WorkStatus is the ingestion lifecycle state of a Work.
type WorkStatus string

// Available work statuses.
const (
	WorkStatusPending    WorkStatus = "pending"
	WorkStatusProcessing WorkStatus = "processing"
	WorkStatusCompleted  WorkStatus = "completed"
	WorkStatusFailed     WorkStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s WorkStatus) IsValid() bool {
	switch s {
	case WorkStatusPending, WorkStatusProcessing, WorkStatusCompleted, WorkStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a work may move from s to next.
// A failed work may be retried; a completed work is final.
func (s WorkStatus) CanTransitionTo(next WorkStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case WorkStatusPending:
		return next == WorkStatusProcessing || next == WorkStatusFailed
	case WorkStatusProcessing:
		return next == WorkStatusCompleted || next == WorkStatusFailed
	case WorkStatusFailed:
		return next == WorkStatusProcessing
	default:
		return false
	}
}

// String returns the string representation.
func (s WorkStatus) String() string {
	return string(s)
}

// Work is an ingested source text, identified by (Slug, Version).
// It owns its chunks.
type Work struct {
	// ID is the unique identifier for the work.
	ID string

	// Slug is the stable, URL-safe name of the work.
	Slug string

	// Version distinguishes re-ingested editions of the same slug.
	Version string

	// CanonicalURL is where the work was obtained from.
	CanonicalURL string

	// Title is the human-readable title.
	Title string

	// Authors lists the work's authors.
	Authors []string

	// Tags are free-form labels.
	Tags []string

	// FileFormat is the format of the raw file (pdf, md, txt).
	FileFormat string

	// RawPath is the object key or path of the raw file.
	RawPath string

	// Status is the ingestion lifecycle state.
	Status WorkStatus

	// IngestionStartedAt is set when processing begins.
	IngestionStartedAt *time.Time

	// IngestionCompletedAt is set when processing completes.
	IngestionCompletedAt *time.Time

	// TotalChunks is the number of chunks produced by ingestion.
	TotalChunks int

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the work was first recorded.
	CreatedAt time.Time

	// UpdatedAt is when the work was last updated.
	UpdatedAt time.Time
}

// Validate checks the identity fields of the work.
func (w *Work) Validate() error {
	if err := validateIDPart("slug", w.Slug); err != nil {
		return err
	}
	if err := validateIDPart("version", w.Version); err != nil {
		return err
	}
	if w.Status != "" && !w.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, w.Status)
	}
	return nil
}

// SameContent reports whether two records describe the same work content,
// ignoring status, timestamps and chunk count.
func (w *Work) SameContent(other *Work) bool {
	return w.Slug == other.Slug &&
		w.Version == other.Version &&
		w.CanonicalURL == other.CanonicalURL &&
		w.Title == other.Title &&
		slices.Equal(w.Authors, other.Authors) &&
		slices.Equal(w.Tags, other.Tags) &&
		w.FileFormat == other.FileFormat &&
		w.RawPath == other.RawPath
}

// CheckUpdate validates replacing the stored work prev with w.
func (w *Work) CheckUpdate(prev *Work) error {
	if !prev.Status.CanTransitionTo(w.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, prev.Status, w.Status)
	}
	if prev.Status == WorkStatusCompleted && !w.SameContent(prev) {
		return fmt.Errorf("%w: %s:%s", ErrWorkImmutable, prev.Slug, prev.Version)
	}
	return nil
}

func validateIDPart(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	if strings.Contains(value, retrievalIDSeparator) {
		return fmt.Errorf("%w: %s must not contain %q", ErrInvalidInput, name, retrievalIDSeparator)
	}
	return nil
}
