package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/stride/internal/blob"
	"github.com/mesh-intelligence/stride/pkg/types"
)

// maxBlobSize bounds one attachment upload.
const maxBlobSize = 64 << 20 // 64MB

// BlobStore holds attachment bytes under <user>/<unixnano>_<name> paths.
// *blob.Store implements it.
type BlobStore interface {
	PutAt(path string, r io.Reader) (int64, error)
	Open(path string) (io.ReadCloser, error)
	Release(ctx context.Context, path string) error
}

// WithBlobs serves attachment bytes from bs under /v1/blobs.
func WithBlobs(bs BlobStore) ServerOption {
	return func(s *Server) { s.blobs = bs }
}

func blobParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

func (s *Server) handlePutBlob(c *gin.Context) {
	path := blobParam(c)
	if c.Request.ContentLength > maxBlobSize {
		s.fail(c, &Error{Status: http.StatusRequestEntityTooLarge, Message: "attachment exceeds 64MB"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBlobSize)

	n, err := s.blobs.PutAt(path, c.Request.Body)
	if err != nil {
		s.fail(c, blobError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "size": n})
}

func (s *Server) handleGetBlob(c *gin.Context) {
	rc, err := s.blobs.Open(blobParam(c))
	if err != nil {
		s.fail(c, blobError(err))
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, nil)
}

func (s *Server) handleDeleteBlob(c *gin.Context) {
	if err := s.blobs.Release(c.Request.Context(), blobParam(c)); err != nil {
		s.fail(c, blobError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// blobError maps blob store failures onto wire errors.
func blobError(err error) error {
	switch {
	case errors.Is(err, blob.ErrInvalidPath):
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidText, Message: err.Error()}
	case errors.Is(err, types.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Message: err.Error()}
	}
	return err
}

// PutBlob uploads the bytes for the attachment at path.
func (c *Client) PutBlob(ctx context.Context, path, mime string, r io.Reader) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.blobURL(path), r)
	if err != nil {
		return err
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetBlob downloads the attachment at path. The caller closes the reader.
// A blob the server does not hold returns an error matching
// types.ErrNotFound.
func (c *Client) GetBlob(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.blobURL(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		err := decodeError(resp)
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: blob %s: %w", types.ErrNotFound, path, err)
		}
		return nil, err
	}
	return resp.Body, nil
}

// DeleteBlob removes the attachment at path. Deleting a blob the server
// does not hold is not an error.
func (c *Client) DeleteBlob(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.blobURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) blobURL(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return c.baseURL + "/v1/blobs/" + strings.Join(segs, "/")
}
