package checks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// HeadBucketAPI is the subset of the S3 client used here, for testing.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// NewS3Client loads the default AWS config chain (env, shared config, IMDS).
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(awsCfg), nil
}

// S3Bucket passes when bucket exists and the caller's credentials can reach it.
func S3Bucket(client HeadBucketAPI, bucket string) health.CheckFunc {
	return func(ctx context.Context) error {
		if bucket == "" {
			return xerrors.New("s3 bucket: no bucket configured")
		}
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err != nil {
			return xerrors.Wrapf(err, "s3 head bucket=%s", bucket)
		}
		return nil
	}
}
