// Package drive implements domain.FileSource over the Google Drive API.
package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/time/rate"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"lake-wap/internal/domain"
)

var _ domain.FileSource = (*Source)(nil)

// Drive API quota is per user; these keep a parallel run well inside it.
const (
	DefaultRequestsPerSecond = 8
	DefaultBurst             = 4
	pageSize                 = 100
)

// Source lists and downloads files from Drive folders.
type Source struct {
	svc     *gdrive.Service
	limiter *rate.Limiter
}

// Option configures a Source.
type Option func(*Source)

// WithRateLimit overrides the request rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Source) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// New creates a read-only Drive source. An empty keyFile uses application
// default credentials.
func New(ctx context.Context, keyFile string, opts ...Option) (*Source, error) {
	clientOpts := []option.ClientOption{option.WithScopes(gdrive.DriveReadonlyScope)}
	if keyFile != "" {
		clientOpts = append(clientOpts, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	}
	svc, err := gdrive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return NewFromService(svc, opts...), nil
}

// NewFromService wraps an existing Drive service.
func NewFromService(svc *gdrive.Service, opts ...Option) *Source {
	s := &Source{
		svc:     svc,
		limiter: rate.NewLimiter(DefaultRequestsPerSecond, DefaultBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the non-trashed files in folderID whose name contains suffix,
// following every result page.
func (s *Source) List(ctx context.Context, folderID, suffix string) ([]domain.SourceFile, error) {
	if folderID == "" {
		return nil, domain.ErrValidation("folder id is required")
	}
	q := ListQuery(folderID, suffix)

	var files []domain.SourceFile
	pageToken := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := s.svc.Files.List().
			Q(q).
			Fields("nextPageToken, files(id, name)").
			PageSize(pageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list drive folder %s: %w", folderID, err)
		}
		for _, f := range res.Files {
			files = append(files, domain.SourceFile{ID: f.Id, Name: f.Name})
		}
		if res.NextPageToken == "" {
			return files, nil
		}
		pageToken = res.NextPageToken
	}
}

// Fetch streams the content of fileID into w.
func (s *Source) Fetch(ctx context.Context, fileID string, w io.Writer) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := s.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("download drive file %s: %w", fileID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read drive file %s: %w", fileID, err)
	}
	return nil
}

// ListQuery builds the Drive search expression for files in a folder.
func ListQuery(folderID, suffix string) string {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escape(folderID))
	if suffix != "" {
		q += fmt.Sprintf(" and name contains '%s'", escape(suffix))
	}
	return q
}

// escape quotes a value for a Drive query string literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
