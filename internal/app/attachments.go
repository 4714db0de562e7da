package app

import (
	"context"
	"errors"
	"io"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// LocalOwner owns attachments written before a user id is configured.
const LocalOwner = "local"

// releaseFunc adapts a function to syncer.BlobReleaser.
type releaseFunc func(ctx context.Context, path string) error

func (f releaseFunc) Release(ctx context.Context, path string) error { return f(ctx, path) }

// Attach stores the bytes of r as an attachment named name. With sync
// enabled the bytes are uploaded to the remote as well; a failed upload is
// logged and the local copy is kept.
func (a *App) Attach(ctx context.Context, name, mime string, r io.Reader) (*types.Attachment, error) {
	owner := a.Config.UserID
	if owner == "" {
		owner = LocalOwner
	}
	att, err := a.Blobs.Put(owner, name, mime, r)
	if err != nil {
		return nil, err
	}
	if a.Remote != nil {
		if err := a.upload(ctx, att); err != nil {
			a.Logger.Warn("uploading attachment", "path", att.Path, "error", err)
		}
	}
	return att, nil
}

func (a *App) upload(ctx context.Context, att *types.Attachment) error {
	rc, err := a.Blobs.Open(att.Path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return a.Remote.PutBlob(ctx, att.Path, att.Mime, rc)
}

// OpenAttachment returns the bytes of att. Bytes this replica has not seen
// yet are downloaded from the remote into the local cache first. The caller
// closes the reader.
func (a *App) OpenAttachment(ctx context.Context, att *types.Attachment) (io.ReadCloser, error) {
	if att == nil || att.Path == "" {
		return nil, types.ErrNotFound
	}
	rc, err := a.Blobs.Open(att.Path)
	if err == nil || !errors.Is(err, types.ErrNotFound) || a.Remote == nil {
		return rc, err
	}

	body, err := a.Remote.GetBlob(ctx, att.Path)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	if _, err := a.Blobs.PutAt(att.Path, body); err != nil {
		return nil, err
	}
	return a.Blobs.Open(att.Path)
}

// ReleaseAttachment drops the bytes at path from the local cache and, with
// sync enabled, from the remote.
func (a *App) ReleaseAttachment(ctx context.Context, path string) error {
	err := a.Blobs.Release(ctx, path)
	if a.Remote != nil {
		err = errors.Join(err, a.Remote.DeleteBlob(ctx, path))
	}
	return err
}
