package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Narrow ledger interfaces required by the archiver. The Postgres stores
// satisfy them implicitly; the archiver never needs write access.

// OpportunityArchiveStore provides read access to the opportunity ledger.
type OpportunityArchiveStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
}

// ExecutionArchiveStore provides read access to the execution ledger.
type ExecutionArchiveStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error)
}

// archiveListLimit bounds how many ledger rows a single session archive
// carries. A session that outgrows it still has the full history in Postgres.
const archiveListLimit = 10_000

// SessionArchive implements domain.SessionArchiver. On shutdown it uploads a
// JSON session summary plus JSONL dumps of the session's opportunities and
// execution results, partitioned by day:
//
//	sessions/2025-01-15/143022-summary.json
//	sessions/2025-01-15/143022-opportunities.jsonl
//	sessions/2025-01-15/143022-executions.jsonl
type SessionArchive struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	executions    ExecutionArchiveStore
}

// NewSessionArchive creates the archiver. Either ledger store may be nil, in
// which case only the summary is uploaded.
func NewSessionArchive(writer domain.BlobWriter, opportunities OpportunityArchiveStore, executions ExecutionArchiveStore) *SessionArchive {
	return &SessionArchive{
		writer:        writer,
		opportunities: opportunities,
		executions:    executions,
	}
}

// ArchiveSession uploads the session summary and ledger dumps. It returns the
// summary object's path.
func (a *SessionArchive) ArchiveSession(ctx context.Context, snapshot domain.StatsSnapshot) (string, error) {
	now := time.Now().UTC()
	prefix := fmt.Sprintf("sessions/%s/%s", now.Format("2006-01-02"), now.Format("150405"))

	summary, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal session summary: %w", err)
	}
	summaryPath := prefix + "-summary.json"
	if err := a.writer.Put(ctx, summaryPath, bytes.NewReader(summary), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload session summary: %w", err)
	}

	if a.opportunities != nil {
		opps, err := a.opportunities.ListRecent(ctx, archiveListLimit)
		if err != nil {
			return summaryPath, fmt.Errorf("s3blob: session opportunities query: %w", err)
		}
		if len(opps) > 0 {
			buf, err := marshalJSONL(opps)
			if err != nil {
				return summaryPath, fmt.Errorf("s3blob: session opportunities marshal: %w", err)
			}
			if err := a.writer.Put(ctx, prefix+"-opportunities.jsonl", bytes.NewReader(buf), "application/x-ndjson"); err != nil {
				return summaryPath, fmt.Errorf("s3blob: session opportunities upload: %w", err)
			}
		}
	}

	if a.executions != nil {
		results, err := a.executions.ListRecent(ctx, archiveListLimit)
		if err != nil {
			return summaryPath, fmt.Errorf("s3blob: session executions query: %w", err)
		}
		if len(results) > 0 {
			buf, err := marshalJSONL(results)
			if err != nil {
				return summaryPath, fmt.Errorf("s3blob: session executions marshal: %w", err)
			}
			if err := a.writer.Put(ctx, prefix+"-executions.jsonl", bytes.NewReader(buf), "application/x-ndjson"); err != nil {
				return summaryPath, fmt.Errorf("s3blob: session executions upload: %w", err)
			}
		}
	}

	return summaryPath, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is one compact JSON line.
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

// Compile-time interface check.
var _ domain.SessionArchiver = (*SessionArchive)(nil)
