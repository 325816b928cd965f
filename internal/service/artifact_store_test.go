package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/storage"
)

func newTestArtifactStore(t *testing.T) (*ArtifactStore, *storage.LocalStorage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewArtifactStore(files, signer, ArtifactStoreConfig{APIPrefix: "/api/v1/", ResultTTL: time.Hour}, nil), files
}

func sampleArtifact() *models.ReportArtifact {
	return &models.ReportArtifact{
		ID:          "0b5c7c1e-6d0a-4b8e-9a53-3b4f1c2d9e10",
		Format:      models.ReportFormatCSV,
		Content:     []byte("Metric,Current Value\nTotal,3\n"),
		ContentType: models.ReportFormatCSV.ContentType(),
		Filename:    "system_report_20261016_093000.csv",
		GeneratedAt: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}
}

func TestArtifactStoreSaveAndResolve(t *testing.T) {
	store, _ := newTestArtifactStore(t)
	artifact := sampleArtifact()

	stored, err := store.Save(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, "2026/10/"+artifact.ID+"/"+artifact.Filename, stored.RelativePath)
	assert.True(t, strings.HasPrefix(stored.URL, "/api/v1/export/"))
	assert.Equal(t, stored.Token, strings.TrimPrefix(stored.URL, "/api/v1/export/"))

	download, err := store.Resolve(context.Background(), stored.Token)
	require.NoError(t, err)
	assert.Equal(t, artifact.ID, download.ArtifactID)
	assert.Equal(t, artifact.Content, download.Content)
	assert.Equal(t, artifact.Filename, download.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
}

func TestArtifactStoreResolveErrors(t *testing.T) {
	store, files := newTestArtifactStore(t)

	_, err := store.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrInvalidDownloadRef)

	stored, err := store.Save(context.Background(), sampleArtifact())
	require.NoError(t, err)
	require.NoError(t, files.Delete(stored.RelativePath))

	_, err = store.Resolve(context.Background(), stored.Token)
	assert.ErrorIs(t, err, appErrors.ErrArtifactNotFound)
}

func TestArtifactStoreCleanup(t *testing.T) {
	store, _ := newTestArtifactStore(t)
	stored, err := store.Save(context.Background(), sampleArtifact())
	require.NoError(t, err)

	deleted, err := store.Cleanup(time.Now())
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = store.Cleanup(time.Now().Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{stored.RelativePath}, deleted)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report", sanitizeFilename(""))
	assert.Equal(t, "a-b_c.csv", sanitizeFilename("a/b c.csv"))
	assert.NotContains(t, sanitizeFilename("../../etc/passwd"), "..")
}
