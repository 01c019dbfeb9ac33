package archive

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
)

// Config holds partition archive configuration
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix  string `mapstructure:"prefix"`
	Region  string `mapstructure:"region"`

	// Endpoint overrides the S3 endpoint, for MinIO and other compatible stores
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`

	// VerifyIdentity resolves the caller identity at startup so that bad
	// credentials fail fast instead of at the first retention sweep
	VerifyIdentity bool `mapstructure:"verify_identity"`
}

// ObjectPutter is the subset of the S3 client the archiver uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads expired partitions to an S3 bucket
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates an archiver using the default AWS credential chain
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*S3Archiver, error) {
	logger = logging.OrNop(logger)

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.VerifyIdentity {
		identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to verify AWS credentials: %w", err)
		}
		logger.Info("archive credentials verified",
			zap.String("arn", aws.ToString(identity.Arn)),
			zap.String("account", aws.ToString(identity.Account)))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient creates an archiver around an existing client
func NewWithClient(client ObjectPutter, bucket, prefix string, logger *zap.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logging.OrNop(logger),
	}
}

// ObjectKey returns the object key a partition is stored under. It mirrors the
// on-disk layout so an archived file can be copied back into a data directory.
func ObjectKey(prefix string, p tsdb.Partition) string {
	return path.Join(prefix, string(p.Kind), string(p.Granularity), p.Key, p.Bucket+tsdb.PartitionExt)
}

// Archive uploads one partition file
func (a *S3Archiver) Archive(ctx context.Context, p tsdb.Partition) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat partition: %w", err)
	}

	key := ObjectKey(a.prefix, p)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"kind":        string(p.Kind),
			"granularity": string(p.Granularity),
			"bucket":      p.Bucket,
		},
	})
	if err != nil {
		return fmt.Errorf("upload partition to s3://%s/%s: %w", a.bucket, key, err)
	}

	a.logger.Debug("archived partition", zap.String("bucket", a.bucket), zap.String("key", key))
	return nil
}
