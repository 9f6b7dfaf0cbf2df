package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cozy-creator/vision-ai/internal/config"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3FileStorage(ctx context.Context, cfg *config.Config) (*S3FileStorage, error) {
	if cfg.S3 == nil || cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("s3 config is not set")
	}

	region := cfg.S3.Region
	if region == "" {
		region = "auto"
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = &cfg.S3.Endpoint
			o.UsePathStyle = true
		}
	})

	return &S3FileStorage{client: client, cfg: cfg.S3}, nil
}

func (s *S3FileStorage) key(name string) string {
	folder := strings.Trim(s.cfg.Folder, "/")
	if folder == "" {
		return name
	}

	return folder + "/" + name
}

func (s *S3FileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	name, err := cleanName(file.Name)
	if err != nil {
		return "", err
	}

	key := s.key(name)
	mtype := mimetype.Detect(file.Content).String()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Key:         &key,
		ContentType: &mtype,
		Bucket:      &s.cfg.Bucket,
		Body:        bytes.NewReader(file.Content),
	})
	if err != nil {
		return "", err
	}

	return s.publicURL(key), nil
}

func (s *S3FileStorage) publicURL(key string) string {
	if s.cfg.PublicUrl != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.cfg.PublicUrl, "/"), key)
	}
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}

	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

func (s *S3FileStorage) GetFile(ctx context.Context, name string) (*FileInfo, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	key := s.key(name)
	object, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	defer object.Body.Close()

	content, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, err
	}

	return &FileInfo{Name: name, Content: content}, nil
}

func (s *S3FileStorage) Delete(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}

	key := s.key(name)
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	})
	return err
}
