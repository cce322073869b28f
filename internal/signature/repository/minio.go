package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"hancock/internal/session/domain"
)

// MinIORepository stores artifacts as <sid>.svg objects in an S3-compatible
// bucket. Staged submissions are written under staging/ and copied into place.
type MinIORepository struct {
	client     *minio.Client
	bucketName string

	mu          sync.Mutex
	bucketReady bool
}

// NewMinIORepository creates a MinIO-backed artifact store. The bucket is
// created lazily on first write so an unreachable endpoint does not block startup.
func NewMinIORepository(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIORepository, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIORepository{client: client, bucketName: bucketName}, nil
}

func objectKey(sid string) string { return sid + ".svg" }

func stagedObjectKey(sid, stageID string) string { return "staging/" + sid + "." + stageID + ".svg" }

func (r *MinIORepository) ensureBucket(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bucketReady {
		return nil
	}
	exists, err := r.client.BucketExists(ctx, r.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", r.bucketName, err)
	}
	if !exists {
		if err := r.client.MakeBucket(ctx, r.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", r.bucketName, err)
		}
	}
	r.bucketReady = true
	return nil
}

func (r *MinIORepository) Stage(ctx context.Context, sid string, content []byte) (string, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return "", domain.NewStorageError("stage artifact", sid, err)
	}
	stageID := newStageID()
	_, err := r.client.PutObject(ctx, r.bucketName, stagedObjectKey(sid, stageID), bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return "", domain.NewStorageError("stage artifact", sid, err)
	}
	return stageID, nil
}

func (r *MinIORepository) Promote(ctx context.Context, sid, stageID string) error {
	if !validStageID(stageID) {
		return domain.NewStorageError("promote artifact", sid, errBadStageID)
	}
	_, err := r.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: r.bucketName, Object: objectKey(sid)},
		minio.CopySrcOptions{Bucket: r.bucketName, Object: stagedObjectKey(sid, stageID)},
	)
	if err != nil {
		return domain.NewStorageError("promote artifact", sid, err)
	}
	return r.Discard(ctx, sid, stageID)
}

func (r *MinIORepository) Discard(ctx context.Context, sid, stageID string) error {
	if !validStageID(stageID) {
		return nil
	}
	err := r.client.RemoveObject(ctx, r.bucketName, stagedObjectKey(sid, stageID), minio.RemoveObjectOptions{})
	return domain.NewStorageError("discard artifact", sid, err)
}

func (r *MinIORepository) Get(ctx context.Context, sid string) ([]byte, error) {
	obj, err := r.client.GetObject(ctx, r.bucketName, objectKey(sid), minio.GetObjectOptions{})
	if err != nil {
		return nil, r.translate("get artifact", sid, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, r.translate("get artifact", sid, err)
	}
	return b, nil
}

func (r *MinIORepository) Exists(ctx context.Context, sid string) (bool, error) {
	_, err := r.client.StatObject(ctx, r.bucketName, objectKey(sid), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if err := r.translate("stat artifact", sid, err); err != domain.ErrNotFound {
		return false, err
	}
	return false, nil
}

func (r *MinIORepository) translate(op, sid string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return domain.ErrNotFound
	}
	return domain.NewStorageError(op, sid, err)
}
