package publish

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"go.uber.org/zap"
)

// MinioPublisher archives documents in an S3 compatible bucket.
type MinioPublisher struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

func NewMinioClient(cfg config.DocumentStoreConfig) (*minio.Client, error) {
	return minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
}

func NewMinioPublisher(client *minio.Client, bucket string, log *zap.Logger) *MinioPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &MinioPublisher{client: client, bucket: bucket, log: log.Named("invoice.publish.minio")}
}

func (p *MinioPublisher) Backend() string { return BackendMinio }

func (p *MinioPublisher) EnsureBucket(ctx context.Context) error {
	found, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !found {
		p.log.Info("creating document bucket", zap.String("bucket", p.bucket))
		return p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Publish uploads doc in one PutObject; S3 never exposes a partial object.
func (p *MinioPublisher) Publish(ctx context.Context, name string, doc []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	info, err := p.client.PutObject(ctx, p.bucket, name, bytes.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType: contentTypePDF,
	})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}

func (p *MinioPublisher) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := p.client.StatObject(ctx, p.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}
