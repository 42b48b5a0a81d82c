// Package storage persists document artifacts (original, converted, signed
// bytes and signature images) in a blob store addressed by afs URLs, so the
// same code serves file://, s3:// or gs:// backends.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// Kind distinguishes the artifacts kept per document.
type Kind string

const (
	KindOriginal  Kind = "original"
	KindConverted Kind = "converted"
	KindSigned    Kind = "signed"
	KindSignature Kind = "signature"
)

// ArtifactStore reads and writes artifacts under a base URL.
type ArtifactStore struct {
	fs      afs.Service
	baseURL string
}

// New creates an ArtifactStore rooted at baseURL.
func New(baseURL string) *ArtifactStore {
	return &ArtifactStore{fs: afs.New(), baseURL: baseURL}
}

// Key builds the storage key for a document artifact. The name carries the
// user-facing extension so downloads stay correctly labeled.
func (s *ArtifactStore) Key(documentID string, kind Kind, name string) string {
	return url.Join(s.baseURL, documentID, string(kind), name)
}

// Put writes data and returns the key it was stored under. The write is
// confirmed (read-back existence check) before the key is handed to callers,
// since state commits are ordered after artifact writes.
func (s *ArtifactStore) Put(ctx context.Context, documentID string, kind Kind, name string, data []byte) (string, error) {
	key := s.Key(documentID, kind, name)
	if err := s.fs.Upload(ctx, key, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUnavailable, fmt.Sprintf("failed to store %s artifact", kind))
	}
	ok, err := s.fs.Exists(ctx, key)
	if err != nil || !ok {
		return "", errors.Wrap(err, errors.ErrCodeUnavailable, fmt.Sprintf("stored %s artifact not readable", kind))
	}
	return key, nil
}

// Get reads the artifact stored under key. A missing artifact is a distinct,
// user-explainable condition (documents ingested before durable storage was
// configured legitimately have none), not a generic not-found.
func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	ok, err := s.fs.Exists(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "artifact store unreachable")
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeGone, "artifact is no longer available in storage")
	}
	data, err := s.fs.DownloadWithURL(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to read artifact")
	}
	return data, nil
}

// Exists reports whether an artifact is present under key.
func (s *ArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.fs.Exists(ctx, key)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeUnavailable, "artifact store unreachable")
	}
	return ok, nil
}
