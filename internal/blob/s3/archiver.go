package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

const dayLayout = "2006-01-02"

// OpportunityHistory is the part of domain.OpportunityStore the archiver
// reads from.
type OpportunityHistory interface {
	Oldest(ctx context.Context) (time.Time, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.RecordedOpportunity, error)
}

// existsChecker is the part of domain.BlobReader used to skip days that are
// already archived.
type existsChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver. Each complete UTC day of history
// older than the cutoff becomes one JSONL object at
// archive/opportunities/YYYY-MM-DD.jsonl. Rows are not deleted from the
// store.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	exists  existsChecker
	history OpportunityHistory
	audit   domain.AuditStore
}

// NewArchiver wires an archiver. exists and audit may be nil; without
// exists every day is rewritten on each run.
func NewArchiver(writer domain.BlobWriter, exists existsChecker, history OpportunityHistory, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		exists:  exists,
		history: history,
		audit:   audit,
	}
}

// ArchiveOpportunities uploads every not-yet-archived day that ends at or
// before the cutoff and returns the number of records written.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	oldest, err := a.history.Oldest(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive oldest: %w", err)
	}
	if oldest.IsZero() {
		return 0, nil
	}

	var total int64
	for day := truncateDay(oldest); !day.Add(24 * time.Hour).After(before); day = day.Add(24 * time.Hour) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := a.archiveDay(ctx, day)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (a *ArchiveImpl) archiveDay(ctx context.Context, day time.Time) (int64, error) {
	path := archivePath("opportunities", day)
	if a.exists != nil {
		ok, err := a.exists.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive check %s: %w", path, err)
		}
		if ok {
			return 0, nil
		}
	}

	opps, err := a.history.ListBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query %s: %w", day.Format(dayLayout), err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(opps))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
			"path":  path,
			"count": count,
			"day":   day.Format(dayLayout),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return count, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// archivePath builds the object key for one day of archived records.
//
//	archive/opportunities/2025-01-31.jsonl
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format(dayLayout))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
