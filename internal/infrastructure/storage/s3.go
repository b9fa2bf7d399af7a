package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsv2s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"visa-tracker/internal/domain"
)

const s3KeyPrefix = "applications/"

// S3 stores documents in an S3 bucket under applications/ and hands out the
// object's public URL as the reference.
type S3 struct {
	client *awsv2s3.Client
	bucket string
	region string
}

func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	return &S3{client: awsv2s3.NewFromConfig(cfg), bucket: bucket, region: region}, nil
}

func (s *S3) Store(ctx context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error) {
	name, err := objectName(filename)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	key := s3KeyPrefix + name
	err = xray.Capture(ctx, "S3.PutObject", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &awsv2s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	})
	if err != nil {
		return domain.DocumentRef{}, err
	}
	ref := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	return domain.DocumentRef{Provider: domain.ProviderS3, Ref: ref, ContentType: contentType}, nil
}

func (s *S3) Remove(ctx context.Context, ref domain.DocumentRef) error {
	key := s.keyFromRef(ref.Ref)
	if key == "" {
		return nil
	}
	// DeleteObject succeeds for keys that no longer exist.
	return xray.Capture(ctx, "S3.DeleteObject", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &awsv2s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (s *S3) keyFromRef(ref string) string {
	_, after, found := strings.Cut(ref, ".amazonaws.com/")
	if !found {
		return ""
	}
	return after
}
