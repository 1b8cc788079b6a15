package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"budgetsync/internal/budget"
)

// versionMetaKey is the object user-metadata key carrying the snapshot version.
const versionMetaKey = "version"

// S3API is the subset of the S3 client used by S3Remote.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures NewS3Remote.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // for S3-compatible services; enables path-style addressing

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Remote stores each budget's snapshot as one object:
//
//	s3://<bucket>/<prefix>/<budgetID>
//
// The version is kept in the object's user metadata so SnapshotVersion is a
// single HEAD request.
type S3Remote struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

// NewS3Remote loads AWS configuration and creates an S3 client for opts.
func NewS3Remote(ctx context.Context, name string, opts S3Options) (*S3Remote, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3RemoteWithClient(name, opts.Bucket, opts.Prefix, client), nil
}

// NewS3RemoteWithClient creates an S3Remote around an existing client.
func NewS3RemoteWithClient(name, bucket, prefix string, client S3API) *S3Remote {
	return &S3Remote{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (v *S3Remote) key(budgetID string) string {
	return path.Join(v.prefix, budgetID)
}

// PutSnapshot uploads the snapshot for budgetID with its version as metadata.
func (v *S3Remote) PutSnapshot(ctx context.Context, budgetID string, r io.Reader, size int64, version int64) error {
	if err := checkBudgetID(budgetID); err != nil {
		return err
	}

	counter := &countingReader{r: r}
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(v.key(budgetID)),
		Body:        counter,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{versionMetaKey: strconv.FormatInt(version, 10)},
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	if counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return nil
}

// GetSnapshot downloads the snapshot for budgetID into w.
func (v *S3Remote) GetSnapshot(ctx context.Context, budgetID string, w io.Writer) error {
	if err := checkBudgetID(budgetID); err != nil {
		return err
	}
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(budgetID)),
	})
	if err != nil {
		if isNotFound(err) {
			return &budget.NotFoundError{Entity: "snapshot", Name: budgetID}
		}
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading snapshot body: %w", err)
	}
	return nil
}

// SnapshotVersion returns the version stored with the object, or 0 if the
// object does not exist.
func (v *S3Remote) SnapshotVersion(ctx context.Context, budgetID string) (int64, error) {
	if err := checkBudgetID(budgetID); err != nil {
		return 0, err
	}
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(budgetID)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable with the
// configured credentials.
func (v *S3Remote) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %q not accessible: %w", v.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ budget.Remote = (*S3Remote)(nil)
