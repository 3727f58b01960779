// Package drive reads the portfolio's content tree from Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pbaille/folio/internal/retry"
)

// Drive MIME types the reader distinguishes.
const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeDocument = "application/vnd.google-apps.document"
)

const listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, imageMediaMetadata(width, height), videoMediaMetadata(width, height))"

// File is the metadata of one remote entry
type File struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime string
	Width        int
	Height       int
}

// IsFolder reports whether f is a folder
func (f File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

// IsDocument reports whether f is a text document
func (f File) IsDocument() bool {
	return f.MimeType == MimeDocument
}

// Service is the read-only subset of the remote store the pipeline uses
type Service interface {
	ListChildren(ctx context.Context, folderID string) ([]File, error)
	Export(ctx context.Context, fileID, mimeType string) (string, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// GoogleService implements Service over the Drive v3 API
type GoogleService struct {
	files *drive.FilesService
	retry retry.Config
}

// NewService authenticates with service-account credentials and returns a read-only client
func NewService(ctx context.Context, credentials []byte) (*GoogleService, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &GoogleService{files: svc.Files, retry: retry.DefaultConfig()}, nil
}

// ListChildren returns every non-trashed child of folderID, folders first then by name
func (s *GoogleService) ListChildren(ctx context.Context, folderID string) ([]File, error) {
	var out []File
	pageToken := ""
	for {
		call := s.files.List().
			Context(ctx).
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields(listFields).
			OrderBy("folder,name").
			PageSize(1000)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := retry.DoWithResult(ctx, s.retry, func() (*drive.FileList, error) {
			res, err := call.Do()
			return res, classify(err)
		})
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}

		for _, f := range page.Files {
			out = append(out, fromAPI(f))
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// Export returns a document converted to mimeType
func (s *GoogleService) Export(ctx context.Context, fileID, mimeType string) (string, error) {
	body, err := retry.DoWithResult(ctx, s.retry, func() ([]byte, error) {
		resp, err := s.files.Export(fileID, mimeType).Context(ctx).Download()
		if err != nil {
			return nil, classify(err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return nil, retry.Retryable(err)
		}
		return data, nil
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", fileID, err)
	}
	return string(body), nil
}

// Download streams the binary content of a file
func (s *GoogleService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := s.files.Get(fileID).Context(ctx).SupportsAllDrives(true).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return resp.Body, nil
}

func fromAPI(f *drive.File) File {
	out := File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, ModifiedTime: f.ModifiedTime}
	switch {
	case f.ImageMediaMetadata != nil:
		out.Width, out.Height = int(f.ImageMediaMetadata.Width), int(f.ImageMediaMetadata.Height)
	case f.VideoMediaMetadata != nil:
		out.Width, out.Height = int(f.VideoMediaMetadata.Width), int(f.VideoMediaMetadata.Height)
	}
	return out
}

// classify marks rate limiting and server errors as retryable
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if retry.RetryableStatus(apiErr.Code) {
			return retry.Retryable(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return retry.Retryable(err)
}
