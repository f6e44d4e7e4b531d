package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sdejongh/replisync/pkg/models"
)

// S3Config configures an S3 (or S3-compatible) remote
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store keeps replicas as objects under a key prefix. The location is the prefix.
type S3Store struct {
	client   *s3.Client
	bucket   string
	transfer Transfer
}

// NewS3Store builds an S3 client. Without static keys the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config, t Transfer) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, cfg.Bucket, t), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client *s3.Client, bucket string, t Transfer) *S3Store {
	return &S3Store{client: client, bucket: bucket, transfer: t}
}

// Name identifies the store kind
func (s *S3Store) Name() string {
	return "s3"
}

// List returns the objects directly under the location prefix, newest first.
// Each object is inspected with HeadObject to recover the uploader's mtime.
func (s *S3Store) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	prefix := listPrefix(location)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    &s.bucket,
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var records []models.RemoteReplica
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}

			modified := models.Epoch(aws.ToTime(obj.LastModified))
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
			if err != nil {
				return nil, fmt.Errorf("failed to inspect object %s: %w", key, err)
			}
			if sec, ok := mtimeFromMetadata(head.Metadata); ok {
				modified = sec
			}

			records = append(records, models.RemoteReplica{
				Name:         path.Base(key),
				ID:           key,
				ModifiedTime: modified,
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}

	sortNewestFirst(records)
	return records, nil
}

// Upload puts the local file under the location prefix.
// The file is sent unwrapped since the SDK needs a seekable body to sign the payload.
func (s *S3Store) Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error) {
	file, info, err := s.transfer.openLocal(localPath)
	if err != nil {
		return models.RemoteReplica{}, err
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(localPath, "\\", "/"))
	key := joinKey(location, name)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      mtimeMetadata(info.ModTime()),
	})
	if err != nil {
		return models.RemoteReplica{}, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return models.RemoteReplica{
		Name:         name,
		ID:           key,
		ModifiedTime: models.Epoch(info.ModTime()),
		Size:         info.Size(),
	}, nil
}

// Download streams the object with key id into destPath
func (s *S3Store) Download(ctx context.Context, id, destPath string) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &id,
	})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", id, err)
	}
	defer resp.Body.Close()

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return s.transfer.receive(ctx, path.Base(id), size, resp.Body, destPath)
}

// Probe checks that the bucket is reachable with the configured credentials
func (s *S3Store) Probe(ctx context.Context, location string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket}); err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", s.bucket, err)
	}
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  aws.String(listPrefix(location)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("location %s is not listable: %w", location, err)
	}
	return nil
}

// Close releases resources (the SDK client holds none that need closing)
func (s *S3Store) Close() error {
	return nil
}

var _ RemoteStore = (*S3Store)(nil)
