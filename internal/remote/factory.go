package remote

import (
	"context"
	"fmt"
	"os"

	"budgetsync/internal/budget"
	"budgetsync/internal/config"
)

// Environment variables holding static S3 credentials. Credentials never
// live in the config file.
const (
	EnvS3AccessKeyID     = "BUDGETSYNC_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "BUDGETSYNC_S3_SECRET_ACCESS_KEY"
)

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig) (budget.Remote, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRemote(cfg.Name), nil
	case "s3":
		return NewS3Remote(ctx, cfg.Name, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     os.Getenv(EnvS3AccessKeyID),
			SecretAccessKey: os.Getenv(EnvS3SecretAccessKey),
		})
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemRemote(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
