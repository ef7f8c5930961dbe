package probe

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// HeadBucketAPI is the slice of the S3 client the probe needs.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 is up when HeadBucket succeeds: the bucket exists and we may access it.
type S3 struct {
	client HeadBucketAPI
	bucket string
}

func NewS3(client HeadBucketAPI, bucket string) (*S3, error) {
	if client == nil {
		return nil, xerrors.Wrap(ErrInvalidConfiguration, "s3 probe client is nil")
	}
	if bucket == "" {
		return nil, xerrors.Wrap(ErrInvalidConfiguration, "s3 probe bucket is empty")
	}
	return &S3{client: client, bucket: bucket}, nil
}

func (p *S3) Check(ctx context.Context, name string) (Result, error) {
	return Timed(func(ctx context.Context) (bool, error) {
		_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
		if err != nil {
			log.FromContext(ctx).Debug(ctx, "s3 probe failed",
				"health_check_name", name,
				"bucket", p.bucket,
				"err", err,
			)
			return false, nil
		}
		return true, nil
	}).Check(ctx, name)
}
