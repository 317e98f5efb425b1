// Package storage persists original image bytes in Amazon S3 or any
// S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads image bytes under images/{id}.jpg and returns the public
// object URL that gets merged into the image's metadata document.
//
// The caller is responsible for configuring the [s3.Client] with appropriate
// credentials, region, and endpoint.
type S3Store struct {
	client S3Client
	bucket string
	region string
}

// NewS3 creates an S3-backed image store.
func NewS3(client S3Client, bucket, region string) *S3Store {
	return &S3Store{client: client, bucket: bucket, region: region}
}

func (s *S3Store) key(imageID string) string {
	return fmt.Sprintf("images/%s.jpg", imageID)
}

// Put uploads image bytes and returns the object URL.
func (s *S3Store) Put(ctx context.Context, imageID string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := s.key(imageID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", domain.NewUpstreamError(domain.StoreObject, fmt.Errorf("put %s: %w", key, err))
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// Delete removes the object for imageID. A missing key is not an error;
// S3 DeleteObject is idempotent and some S3-compatible stores report
// NoSuchKey instead.
func (s *S3Store) Delete(ctx context.Context, imageID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(imageID)),
	})
	if err != nil && !isS3NotFound(err) {
		return domain.NewUpstreamError(domain.StoreObject, fmt.Errorf("delete %s: %w", s.key(imageID), err))
	}
	return nil
}

// isS3NotFound reports whether err is an S3 "key does not exist" error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
