package outbound

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"labbilling-backend/config"
	"labbilling-backend/einvoice"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const xmlContentType = "application/xml"

// Archive stores exported documents in an object bucket, one object per
// transmission under the tenant's prefix.
type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(cfg config.StorageConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// ObjectKey is the bucket key of doc for tenant schema.
func ObjectKey(schema string, doc *einvoice.Document) string {
	year, _, _ := strings.Cut(doc.Number, "-")
	return path.Join(schema, year, doc.FileName)
}

func (a *Archive) Store(ctx context.Context, schema string, doc *einvoice.Document) (string, error) {
	key := ObjectKey(schema, doc)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(doc.XML), int64(len(doc.XML)), minio.PutObjectOptions{
		ContentType: xmlContentType,
		UserMetadata: map[string]string{
			"invoice-number": doc.Number,
			"digest":         doc.Digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return key, nil
}
