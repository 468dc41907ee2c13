package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// EvidenceArchiver implements domain.EvidenceArchiver by uploading the
// resolution and the snapshot it was decided on as one JSON document.
//
//	evidence/{wagerId}/{resolvedAt}.json
type EvidenceArchiver struct {
	writer domain.BlobWriter
}

var _ domain.EvidenceArchiver = (*EvidenceArchiver)(nil)

// NewEvidenceArchiver creates an archiver writing through w.
func NewEvidenceArchiver(w domain.BlobWriter) *EvidenceArchiver {
	return &EvidenceArchiver{writer: w}
}

type evidenceDoc struct {
	WagerID    string              `json:"wager_id"`
	Status     domain.WagerStatus  `json:"status"`
	Choice     string              `json:"choice,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	ResolvedAt time.Time           `json:"resolved_at"`
	Snapshot   domain.GameSnapshot `json:"snapshot"`
}

// Archive uploads the evidence document for res.
func (a *EvidenceArchiver) Archive(ctx context.Context, res domain.Resolution, snap domain.GameSnapshot) error {
	buf, err := json.Marshal(evidenceDoc{
		WagerID:    res.WagerID,
		Status:     res.Status,
		Choice:     res.Choice,
		Reason:     res.Reason,
		ResolvedAt: res.ResolvedAt.UTC(),
		Snapshot:   snap,
	})
	if err != nil {
		return fmt.Errorf("s3blob: marshal evidence %s: %w", res.WagerID, err)
	}
	path := EvidencePath(res.WagerID, res.ResolvedAt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive evidence %s: %w", res.WagerID, err)
	}
	return nil
}

// EvidencePath is the object key of a wager's evidence document.
func EvidencePath(wagerID string, resolvedAt time.Time) string {
	return fmt.Sprintf("evidence/%s/%s.json", wagerID, resolvedAt.UTC().Format("20060102T150405Z"))
}
