// Package feedarchive keeps an S3 audit trail of raw feed batches. Archival
// is best-effort: a missing bucket or a failed put never blocks a pass.
package feedarchive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TCaken/loancrm/pkg/logging"
)

// S3API is the subset of the S3 client used by Archive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes raw feed batches to S3, keyed by date and batch ID.
type Archive struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewArchive creates an Archive. If bucket is empty, all operations are no-ops.
func NewArchive(s3Client S3API, bucket string, logger *logging.Logger) *Archive {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archive{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (a *Archive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Store writes one raw batch under feeds/YYYY-MM-DD/<batchID>.json.
func (a *Archive) Store(ctx context.Context, batchID string, date time.Time, raw []byte) error {
	if !a.Enabled() {
		return nil
	}

	key := fmt.Sprintf("feeds/%s/%s.json", date.UTC().Format("2006-01-02"), batchID)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("feedarchive: s3 put %s: %w", key, err)
	}

	a.logger.Info("archived feed batch", "s3_key", key, "bytes", len(raw))
	return nil
}
