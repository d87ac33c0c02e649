package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// ReceiptStore archives rendered receipts.
type ReceiptStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

func ReceiptKey(orderNumber string) string {
	return fmt.Sprintf("receipts/%s.html", orderNumber)
}

type MinIOReceipts struct {
	client *minio.Client
	bucket string
}

func NewMinIOReceipts(client *minio.Client, bucket string) *MinIOReceipts {
	return &MinIOReceipts{client: client, bucket: bucket}
}

func (m *MinIOReceipts) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

// SignedURL returns a time-limited download link for an archived receipt.
func (m *MinIOReceipts) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", m.bucket, key, err)
	}
	return u.String(), nil
}
