package archive_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsanders-rh/kubecostd/internal/archive"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func partition(t *testing.T, content string) tsdb.Partition {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2023.psv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return tsdb.Partition{
		Kind:        types.ResourceKindPod,
		Granularity: types.GranularityDay,
		Key:         "default/web-0",
		Bucket:      "2023",
		Path:        path,
	}
}

func TestObjectKey(t *testing.T) {
	p := tsdb.Partition{Kind: types.ResourceKindContainer, Granularity: types.GranularityMinute, Key: "ns/pod/app", Bucket: "2024-01-02"}
	assert.Equal(t, "cold/container/minute/ns/pod/app/2024-01-02.psv", archive.ObjectKey("cold", p))
	assert.Equal(t, "container/minute/ns/pod/app/2024-01-02.psv", archive.ObjectKey("", p))
}

func TestS3Archiver_Archive(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	a := archive.NewWithClient(client, "metrics-archive", "kubecostd", nil)
	p := partition(t, "2023-12-31T00:00:00Z|1||||||||||||||\n")

	require.NoError(t, a.Archive(context.Background(), p))
	assert.Equal(t,
		"2023-12-31T00:00:00Z|1||||||||||||||\n",
		string(client.objects["metrics-archive/kubecostd/pod/day/default/web-0/2023.psv"]))
}

func TestS3Archiver_Errors(t *testing.T) {
	t.Run("upload failure", func(t *testing.T) {
		a := archive.NewWithClient(&fakeS3{err: errors.New("access denied")}, "b", "", nil)
		err := a.Archive(context.Background(), partition(t, "x\n"))
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("missing file", func(t *testing.T) {
		a := archive.NewWithClient(&fakeS3{objects: map[string][]byte{}}, "b", "", nil)
		err := a.Archive(context.Background(), tsdb.Partition{Path: filepath.Join(t.TempDir(), "gone.psv")})
		assert.Error(t, err)
	})
}

func TestS3Archiver_WithStore(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	a := archive.NewWithClient(client, "b", "p", nil)

	s, err := tsdb.NewStore(t.TempDir(), types.ResourceKindNode, types.GranularityHour)
	require.NoError(t, err)
	rec := types.NewRecord(mustTime(t, "2022-03-04T05:00:00Z"))
	require.NoError(t, s.Append("node-1", rec))

	deleted, err := s.ArchiveOlderThan(context.Background(), "node-1", mustTime(t, "2023-01-01T00:00:00Z"), a)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Contains(t, client.objects, "b/p/node/hour/node-1/2022-03.psv")
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
