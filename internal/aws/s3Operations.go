package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/utils"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

type S3Service struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
	logger     *zap.Logger
}

func NewS3Service(client *s3.Client, bucketName string, logger *zap.Logger) *S3Service {
	return &S3Service{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucketName: bucketName,
		logger:     logger,
	}
}

func (service *S3Service) BucketName() string {
	return service.bucketName
}

// PutFile uploads the local file at filePath under key. Progress is reported
// as the body is consumed by the uploader.
func (service *S3Service) PutFile(ctx context.Context, key string, filePath string, contentType string, progress ProgressFunc) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}

	input := &s3.PutObjectInput{
		Bucket:            aws.String(service.bucketName),
		Key:               aws.String(key),
		Body:              &progressReader{r: f, total: total, fn: progress},
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := service.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("couldn't upload object with key: %s, AWS error: %w", key, err)
	}
	service.logger.Debug("upload success", zap.String("key", key), zap.Int64("bytes", total))
	return nil
}

// DownloadObject streams key into filePath, creating parent directories.
func (service *S3Service) DownloadObject(ctx context.Context, key string, filePath string, progress ProgressFunc) (int64, error) {
	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't download object with key: %s, AWS error: %w", key, classify(err))
	}
	defer resp.Body.Close()

	filePath, err = utils.PathUtil(filePath, "")
	if err != nil {
		return 0, err
	}
	outFile, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer outFile.Close()

	total := aws.ToInt64(resp.ContentLength)
	if resp.ContentLength == nil {
		total = -1
	}
	n, err := io.Copy(&progressWriter{w: outFile, total: total, fn: progress}, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write object data: %w", err)
	}
	service.logger.Debug("download success", zap.String("key", key), zap.Int64("bytes", n))
	return n, nil
}

func (service *S3Service) PutJSON(ctx context.Context, key string, v any) error {
	body, err := utils.SerializeJSON(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = service.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(service.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("couldn't put object with key: %s, AWS error: %w", key, err)
	}
	return nil
}

// GetJSON decodes the object at key into v. A missing key yields ErrObjectNotFound.
func (service *S3Service) GetJSON(ctx context.Context, key string, v any) error {
	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("couldn't get object with key: %s: %w", key, classify(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return utils.ParseJSON(body, v)
}

func (service *S3Service) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(service.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(service.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return objects, nil
}

// DeletePrefix removes every object under prefix and returns how many were deleted.
func (service *S3Service) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("prefix cannot be empty")
	}
	objects, err := service.ListPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	// DeleteObjects accepts at most 1000 keys per call.
	for start := 0; start < len(objects); start += 1000 {
		end := min(start+1000, len(objects))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(obj.Key)})
		}
		out, err := service.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(service.bucketName),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			return deleted, fmt.Errorf("failed to delete %d objects under %s: %s", len(out.Errors), prefix, aws.ToString(out.Errors[0].Message))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

func (service *S3Service) DeleteS3Object(parentCtx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	ctx, cancel := context.WithTimeout(parentCtx, 1*time.Minute)
	defer cancel()

	deleteInput := &s3.DeleteObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	}

	if _, err := service.client.DeleteObject(ctx, deleteInput); err != nil {
		return false, fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return true, nil
}

func classify(err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}
