package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/givelift/recall/internal/errors"
)

// UploadStats exposes the aggregates the quota checks read.
type UploadStats interface {
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	SumBytesByOwner(ctx context.Context, ownerID string) (int64, error)
	CountUploadsSince(ctx context.Context, ownerID string, since time.Time) (int64, error)
}

// QuotaPolicy caps an owner's document footprint. A zero limit disables
// that check.
type QuotaPolicy struct {
	MaxDocuments    int
	MaxStorageBytes int64
	MaxDailyUploads int
}

// QuotaChecker enforces the upload quotas before a document is accepted.
type QuotaChecker struct {
	stats  UploadStats
	policy QuotaPolicy
	now    func() time.Time
}

func NewQuotaChecker(stats UploadStats, policy QuotaPolicy) *QuotaChecker {
	return &QuotaChecker{stats: stats, policy: policy, now: time.Now}
}

// CheckUploadAllowed runs the three quota checks in order: document
// count, total storage including the incoming size, and uploads since
// UTC midnight. Each failure carries its own quota kind so callers can
// tell the owner which limit they hit.
func (q *QuotaChecker) CheckUploadAllowed(ctx context.Context, ownerID string, sizeBytes int64) error {
	if ownerID == "" {
		return errors.NewValidation("owner id is required")
	}
	if sizeBytes < 0 {
		return errors.NewValidation("size must not be negative, got %d", sizeBytes)
	}

	count, err := q.stats.CountByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if q.policy.MaxDocuments > 0 && count >= int64(q.policy.MaxDocuments) {
		return errors.NewQuotaExceeded(errors.QuotaDocumentCount,
			fmt.Sprintf("document limit of %d reached", q.policy.MaxDocuments))
	}

	stored, err := q.stats.SumBytesByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to sum stored bytes: %w", err)
	}
	if q.policy.MaxStorageBytes > 0 && stored+sizeBytes > q.policy.MaxStorageBytes {
		return errors.NewQuotaExceeded(errors.QuotaStorageBytes,
			fmt.Sprintf("upload of %d bytes would exceed the %d byte storage limit", sizeBytes, q.policy.MaxStorageBytes))
	}

	uploads, err := q.stats.CountUploadsSince(ctx, ownerID, q.dayStart())
	if err != nil {
		return fmt.Errorf("failed to count recent uploads: %w", err)
	}
	if q.policy.MaxDailyUploads > 0 && uploads >= int64(q.policy.MaxDailyUploads) {
		return errors.NewQuotaExceeded(errors.QuotaDailyUploads,
			fmt.Sprintf("daily upload limit of %d reached", q.policy.MaxDailyUploads))
	}
	return nil
}

// dayStart returns the current UTC calendar day's midnight.
func (q *QuotaChecker) dayStart() time.Time {
	return q.now().UTC().Truncate(24 * time.Hour)
}
