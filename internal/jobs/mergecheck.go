package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"bindery/internal/files"
)

// Issue codes reported by the merge dry-run.
const (
	IssueCoverURLRequired    = "COVER_URL_REQUIRED"
	IssueContentURLRequired  = "CONTENT_URL_REQUIRED"
	IssueCoverFileNotFound   = "COVER_FILE_NOT_FOUND"
	IssueContentFileNotFound = "CONTENT_FILE_NOT_FOUND"
	IssueCoverInaccessible   = "COVER_FILE_INACCESSIBLE"
	IssueContentInaccessible = "CONTENT_FILE_INACCESSIBLE"
	IssueInvalidSpineWidth   = "INVALID_SPINE_WIDTH"
)

// Issue is one problem found by the merge dry-run.
type Issue struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// MergeCheckResult is the outcome of the dry-run. Issues is empty exactly
// when Mergeable is true.
type MergeCheckResult struct {
	Mergeable bool    `json:"mergeable"`
	Issues    []Issue `json:"issues,omitempty"`
}

// Checker performs the synthesis pre-flight: it validates that cover and
// content inputs resolve and are reachable, without creating a job or
// touching a queue. All problems are accumulated so the caller gets the
// complete diagnostic in one round trip.
type Checker struct {
	files  files.Resolver
	prober files.Prober
	logger *slog.Logger
}

func NewChecker(fr files.Resolver, pr files.Prober, logger *slog.Logger) *Checker {
	return &Checker{files: fr, prober: pr, logger: logger}
}

// sideIssues groups the issue codes for one input side.
type sideIssues struct {
	urlRequired  string
	notFound     string
	inaccessible string
}

var (
	coverIssues   = sideIssues{IssueCoverURLRequired, IssueCoverFileNotFound, IssueCoverInaccessible}
	contentIssues = sideIssues{IssueContentURLRequired, IssueContentFileNotFound, IssueContentInaccessible}
)

// CheckMergeable reports whether a synthesis of the given inputs could be
// attempted. It is idempotent and side-effect-free.
func (c *Checker) CheckMergeable(ctx context.Context, sessionID uuid.UUID, cover, content FileRef, spineWidth float64) MergeCheckResult {
	var issues []Issue

	issues = append(issues, c.checkSide(ctx, cover, coverIssues)...)
	issues = append(issues, c.checkSide(ctx, content, contentIssues)...)

	if spineWidth < 0 {
		issues = append(issues, Issue{Code: IssueInvalidSpineWidth, Detail: "spineWidth must not be negative"})
	}

	result := MergeCheckResult{Mergeable: len(issues) == 0, Issues: issues}
	c.logger.Info("merge_check",
		"edit_session_id", sessionID.String(), "mergeable", result.Mergeable, "issues", len(issues))
	return result
}

// checkSide resolves and probes one input side. The accessibility probe
// only runs when resolution raised no issue for the side.
func (c *Checker) checkSide(ctx context.Context, ref FileRef, codes sideIssues) []Issue {
	var resolved files.Reference

	switch {
	case ref.FileID != "":
		r, err := c.files.Resolve(ctx, ref.FileID)
		if err != nil {
			detail := ref.FileID
			if !errors.Is(err, files.ErrFileNotFound) {
				detail = err.Error()
			}
			return []Issue{{Code: codes.notFound, Detail: detail}}
		}
		resolved = r
	case ref.URL != "":
		resolved = files.Reference{URL: ref.URL}
	default:
		return []Issue{{Code: codes.urlRequired}}
	}

	if err := c.prober.Probe(ctx, resolved); err != nil {
		return []Issue{{Code: codes.inaccessible, Detail: err.Error()}}
	}
	return nil
}
