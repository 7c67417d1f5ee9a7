package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Presigner issues presigned PUT URLs for direct browser uploads.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string, expiry time.Duration) (string, map[string]string, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Presigner struct {
	client presignAPI
}

func NewS3Presigner(cfg sdkaws.Config) *S3Presigner {
	return &S3Presigner{client: s3.NewPresignClient(s3.NewFromConfig(cfg))}
}

// PresignPut returns the URL and the headers the uploader must send with it.
func (p *S3Presigner) PresignPut(ctx context.Context, bucket, key, contentType string, expiry time.Duration) (string, map[string]string, error) {
	input := &s3.PutObjectInput{
		Bucket:      sdkaws.String(bucket),
		Key:         sdkaws.String(key),
		ContentType: sdkaws.String(contentType),
	}
	presigned, err := p.client.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to presign put object: %w", err)
	}

	headers := make(map[string]string)
	for k, v := range presigned.SignedHeader {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return presigned.URL, headers, nil
}
