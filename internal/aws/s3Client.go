package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client. A non-empty endpoint selects an
// S3-compatible service (MinIO) with path-style addressing.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	if endpoint == "" {
		return s3.NewFromConfig(cfg)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}
