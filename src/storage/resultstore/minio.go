package resultstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings of a MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// MinioStore keeps one object per job id in an S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Store = (*MinioStore)(nil)

func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, &Error{Op: "init", Err: fmt.Errorf("failed to create minio client: %w", err)}
	}

	s := &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &Error{Op: "init", Err: fmt.Errorf("failed to check bucket existence: %w", err)}
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return &Error{Op: "init", Err: fmt.Errorf("failed to create bucket: %w", err)}
		}
	}
	return nil
}

// Save refuses to overwrite an existing object. The existence check and
// the upload are two requests, so two concurrent writers of the same id
// are only kept apart by the job registry.
func (s *MinioStore) Save(ctx context.Context, id string, result interface{}) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	data, err := encode(result)
	if err != nil {
		return err
	}

	_, err = s.client.StatObject(ctx, s.bucket, s.key(id), minio.StatObjectOptions{})
	if err == nil {
		return ErrResultExists
	}
	if !isNotFound(err) {
		return &Error{Op: "save", ID: id, Err: err}
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.key(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return &Error{Op: "save", ID: id, Err: err}
	}
	return nil
}

// Open stats the object before returning it so a missing entry surfaces
// here rather than on the first read.
func (s *MinioStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, &Error{Op: "open", ID: id, Err: err}
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, ErrResultNotFound
		}
		return nil, &Error{Op: "open", ID: id, Err: err}
	}
	return obj, nil
}

func (s *MinioStore) List(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	var ids []string
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, &Error{Op: "list", Err: obj.Err}
		}
		id := strings.TrimPrefix(obj.Key, opts.Prefix)
		if !ValidID(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MinioStore) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return path.Join(s.prefix, id)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
