package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/storage"
)

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Read(relPath string) ([]byte, error)
	Delete(relPath string) error
	CleanupOlderThan(now time.Time, ttl time.Duration) ([]string, error)
}

type tokenSigner interface {
	Generate(artifactID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// ArtifactStoreConfig tunes artifact persistence.
type ArtifactStoreConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StoredArtifact is the download reference of a persisted artifact.
type StoredArtifact struct {
	RelativePath string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// ArtifactDownload is a resolved download.
type ArtifactDownload struct {
	ArtifactID  string
	Filename    string
	ContentType string
	Content     []byte
	ExpiresAt   time.Time
}

// ArtifactStore persists rendered artifacts and issues signed download links.
type ArtifactStore struct {
	storage fileStorage
	signer  tokenSigner
	cfg     ArtifactStoreConfig
	logger  *zap.Logger
}

// NewArtifactStore constructs an ArtifactStore.
func NewArtifactStore(files fileStorage, signer tokenSigner, cfg ArtifactStoreConfig, logger *zap.Logger) *ArtifactStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 72 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ArtifactStore{storage: files, signer: signer, cfg: cfg, logger: logger}
}

// Save writes the artifact under yyyy/mm/<id>/<filename> and signs a download token.
func (s *ArtifactStore) Save(ctx context.Context, artifact *models.ReportArtifact) (*StoredArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	relPath := path.Join(artifact.GeneratedAt.UTC().Format("2006/01"), artifact.ID, sanitizeFilename(artifact.Filename))
	saved, err := s.storage.Save(relPath, artifact.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report artifact")
	}
	token, expiresAt, err := s.signer.Generate(artifact.ID, saved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &StoredArtifact{
		RelativePath: saved,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Resolve validates a download token and loads the artifact bytes.
func (s *ArtifactStore) Resolve(ctx context.Context, token string) (*ArtifactDownload, error) {
	artifactID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInvalidDownloadRef, err, "")
	}
	content, err := s.storage.Read(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.WrapAs(appErrors.ErrArtifactNotFound, err, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report artifact")
	}
	filename := path.Base(relPath)
	return &ArtifactDownload{
		ArtifactID:  artifactID,
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		Content:     content,
		ExpiresAt:   expiresAt,
	}, nil
}

// Cleanup removes artifacts older than the configured TTL.
func (s *ArtifactStore) Cleanup(now time.Time) ([]string, error) {
	deleted, err := s.storage.CleanupOlderThan(now, s.cfg.ResultTTL)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("expired report artifacts removed", "count", len(deleted))
	}
	return deleted, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return models.ReportFormatCSV.ContentType()
	case ".pdf":
		return models.ReportFormatPDF.ContentType()
	default:
		return "application/octet-stream"
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "report"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var (
	_ fileStorage = (*storage.LocalStorage)(nil)
	_ tokenSigner = (*storage.SignedURLSigner)(nil)
)
