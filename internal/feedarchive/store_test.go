package feedarchive

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingS3 struct {
	key  string
	body []byte
}

func (c *capturingS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.key = aws.ToString(params.Key)
	c.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestStoreWritesDatedKey(t *testing.T) {
	client := &capturingS3{}
	archive := NewArchive(client, "loancrm-feeds", nil)

	date := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
	require.NoError(t, archive.Store(context.Background(), "batch-42", date, []byte(`{"rows":[]}`)))

	assert.Equal(t, "feeds/2025-03-10/batch-42.json", client.key)
	assert.JSONEq(t, `{"rows":[]}`, string(client.body))
}

func TestArchiveDisabledWithoutBucket(t *testing.T) {
	archive := NewArchive(nil, "", nil)
	assert.False(t, archive.Enabled())
	assert.NoError(t, archive.Store(context.Background(), "batch-1", time.Now(), []byte("x")))
}
