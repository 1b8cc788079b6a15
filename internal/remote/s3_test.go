package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"budgetsync/internal/budget"
)

// fakeS3 keeps objects in memory. Snapshots stay far below the uploader's
// part size, so only the single-part PutObject path is exercised.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	bucket  string
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
		bucket:  bucket,
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: f.meta[key]}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Remote_PutAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("budgets")
	v := NewS3RemoteWithClient("cloud", "budgets", "family", fake)

	data := "encrypted snapshot"
	if err := v.PutSnapshot(ctx, "budget_abc", strings.NewReader(data), int64(len(data)), 1700000000000); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	if _, ok := fake.objects["family/budget_abc"]; !ok {
		t.Errorf("object not stored under prefix; keys = %v", fake.objects)
	}

	var buf bytes.Buffer
	if err := v.GetSnapshot(ctx, "budget_abc", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("GetSnapshot() = %q, want %q", buf.String(), data)
	}

	version, err := v.SnapshotVersion(ctx, "budget_abc")
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if version != 1700000000000 {
		t.Errorf("SnapshotVersion() = %d, want 1700000000000", version)
	}
}

func TestS3Remote_Missing(t *testing.T) {
	ctx := context.Background()
	v := NewS3RemoteWithClient("cloud", "budgets", "", newFakeS3("budgets"))

	var buf bytes.Buffer
	if err := v.GetSnapshot(ctx, "budget_missing", &buf); !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("GetSnapshot() error = %v, want ErrNotFound", err)
	}

	version, err := v.SnapshotVersion(ctx, "budget_missing")
	if err != nil || version != 0 {
		t.Errorf("SnapshotVersion() = %d, %v; want 0, nil", version, err)
	}
}

func TestS3Remote_SizeMismatch(t *testing.T) {
	v := NewS3RemoteWithClient("cloud", "budgets", "", newFakeS3("budgets"))

	err := v.PutSnapshot(context.Background(), "budget_abc", strings.NewReader("short"), 100, 1)
	if err == nil {
		t.Error("PutSnapshot() expected error for size mismatch")
	}
}

func TestS3Remote_ValidateSetup(t *testing.T) {
	ctx := context.Background()

	ok := NewS3RemoteWithClient("cloud", "budgets", "", newFakeS3("budgets"))
	if err := ok.ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	missing := NewS3RemoteWithClient("cloud", "other", "", newFakeS3("budgets"))
	if err := missing.ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}
