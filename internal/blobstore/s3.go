package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API подмножество методов S3 клиента, которые использует S3Store
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store хранит чанки в бакете S3: <prefix><uploadID>/<totalChunks>/<index>
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store создает хранилище поверх S3 с конфигурацией AWS по умолчанию
func NewS3Store(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3StoreWithClient создает хранилище поверх готового клиента
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) uploadPrefix(uploadID string) string {
	return s.prefix + uploadID + "/"
}

func (s *S3Store) chunkKey(uploadID string, totalChunks, index int) string {
	return s.uploadPrefix(uploadID) + path.Join(strconv.Itoa(totalChunks), strconv.Itoa(index))
}

// Put загружает чанк одним объектом
func (s *S3Store) Put(ctx context.Context, uploadID string, totalChunks, index int, data io.Reader) error {
	if err := ValidateKey(uploadID); err != nil {
		return err
	}

	// S3 требует известную длину тела, чанк ограничен по размеру на уровне API
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read chunk %d: %w", index, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.chunkKey(uploadID, totalChunks, index)),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(int64(len(b))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put chunk %d: %w", index, err)
	}
	return nil
}

// Open скачивает чанк
func (s *S3Store) Open(ctx context.Context, uploadID string, totalChunks, index int) (io.ReadCloser, error) {
	if err := ValidateKey(uploadID); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.chunkKey(uploadID, totalChunks, index)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, uploadID, index)
		}
		return nil, fmt.Errorf("get chunk %d: %w", index, err)
	}
	return out.Body, nil
}

// Delete удаляет все объекты загрузки пачками
func (s *S3Store) Delete(ctx context.Context, uploadID string) error {
	if err := ValidateKey(uploadID); err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.uploadPrefix(uploadID)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list upload %s: %w", uploadID, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete upload %s: %w", uploadID, err)
		}
		if out != nil && len(out.Errors) > 0 {
			return fmt.Errorf("delete upload %s: %d objects failed, first: %s",
				uploadID, len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
	}

	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
