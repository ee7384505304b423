package repository

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gradeflow/internal/common/storage"
	appErr "gradeflow/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const (
	artifactObjectName  = "artifacts.tar.zst"
	artifactContentType = "application/zstd"
	maxArtifactEntry    = 32 << 20
)

// ArtifactStore archives the inputs and outputs of a review.
type ArtifactStore interface {
	Save(ctx context.Context, submissionID int64, jobID string, files map[string][]byte) (string, error)
	Load(ctx context.Context, submissionID int64, jobID string) (map[string][]byte, error)
}

// ObjectArtifactStore writes one zstd-compressed tar per review to object
// storage under reviews/<submissionId>/<jobId>/.
type ObjectArtifactStore struct {
	storage storage.ObjectStorage
	bucket  string
}

func NewObjectArtifactStore(objects storage.ObjectStorage, bucket string) *ObjectArtifactStore {
	return &ObjectArtifactStore{storage: objects, bucket: bucket}
}

// ArtifactKey is the object key of a review archive.
func ArtifactKey(submissionID int64, jobID string) string {
	return fmt.Sprintf("reviews/%d/%s/%s", submissionID, jobID, artifactObjectName)
}

// Save archives files and returns the object key.
func (s *ObjectArtifactStore) Save(ctx context.Context, submissionID int64, jobID string, files map[string][]byte) (string, error) {
	if s.storage == nil || s.bucket == "" {
		return "", appErr.New(appErr.StorageError).WithMessage("artifact storage is not configured")
	}
	if submissionID <= 0 || jobID == "" {
		return "", appErr.ValidationError("artifact", "submission id and job id are required")
	}

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "create zstd writer failed")
	}
	tw := tar.NewWriter(zw)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	now := time.Now()
	for _, name := range names {
		data := files[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), ModTime: now, Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			_ = zw.Close()
			return "", appErr.Wrapf(err, appErr.StorageError, "write tar header failed")
		}
		if _, err := tw.Write(data); err != nil {
			_ = zw.Close()
			return "", appErr.Wrapf(err, appErr.StorageError, "write tar entry failed")
		}
	}
	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return "", appErr.Wrapf(err, appErr.StorageError, "close tar failed")
	}
	if err := zw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "close zstd writer failed")
	}

	key := ArtifactKey(submissionID, jobID)
	if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), artifactContentType); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload artifacts failed")
	}
	return key, nil
}

// Load reads back the files archived for a review.
func (s *ObjectArtifactStore) Load(ctx context.Context, submissionID int64, jobID string) (map[string][]byte, error) {
	if s.storage == nil || s.bucket == "" {
		return nil, appErr.New(appErr.StorageError).WithMessage("artifact storage is not configured")
	}
	rc, err := s.storage.GetObject(ctx, s.bucket, ArtifactKey(submissionID, jobID))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "download artifacts failed")
	}
	defer rc.Close()

	zr, err := zstd.NewReader(rc)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "create zstd reader failed")
	}
	defer zr.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.StorageError, "read tar entry failed")
		}
		if hdr.Size > maxArtifactEntry {
			return nil, appErr.New(appErr.StorageError).WithMessagef("artifact %s is too large", hdr.Name)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.StorageError, "read artifact %s failed", hdr.Name)
		}
		files[hdr.Name] = data
	}
}
