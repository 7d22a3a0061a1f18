package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/types"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env, user := int64(4), int64(9)

	rec, err := NewRecord(types.BuildRequest{
		ProjectID:     2,
		Branch:        "release",
		CommitID:      "abc123",
		Source:        "webhook-pull-request-created",
		EnvironmentID: &env,
		UserID:        &user,
	}, now)
	require.NoError(t, err)

	assert.Equal(t, types.StatusPending, rec.Status())
	assert.Equal(t, int64(2), rec.ProjectID())
	assert.Equal(t, "release", rec.Branch())
	assert.Equal(t, "abc123", rec.CommitID())
	assert.Equal(t, types.SourceWebhookPullRequestCreated, rec.Source())
	assert.Equal(t, int64(4), rec.EnvironmentID())
	assert.Equal(t, int64(9), rec.UserID())
	require.NotNil(t, rec.CreateDate())
	assert.Equal(t, now, *rec.CreateDate())
	assert.False(t, rec.HasID())
}

func TestNewRecord_Defaults(t *testing.T) {
	requested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := NewRecord(types.BuildRequest{ProjectID: 1, RequestedAt: requested}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, types.SourceManual, rec.Source())
	assert.Equal(t, requested, *rec.CreateDate())

	data := rec.Data()
	assert.Nil(t, data["branch"])
	assert.Nil(t, data["tag"])
	assert.Nil(t, data["environment_id"])
}

func TestNewRecord_Invalid(t *testing.T) {
	_, err := NewRecord(types.BuildRequest{}, time.Now())
	assert.Error(t, err)

	_, err = NewRecord(types.BuildRequest{ProjectID: 1, Source: "fax"}, time.Now())
	assert.Error(t, err)
}

func TestReadRequest(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	req, err := ReadRequest(write("ok.yml", "project_id: 3\ntag: v2\nsource: periodical\n"))
	require.NoError(t, err)
	assert.Equal(t, types.BuildRequest{ProjectID: 3, Tag: "v2", Source: "periodical"}, req)

	req, err = ReadRequest(write("ok.json", `{"project_id": 4, "branch": "main", "user_id": 8}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), req.ProjectID)
	require.NotNil(t, req.UserID)
	assert.Equal(t, int64(8), *req.UserID)

	_, err = ReadRequest(write("empty.yml", "  \n"))
	assert.Error(t, err)

	_, err = ReadRequest(write("noproject.yml", "branch: main\n"))
	assert.Error(t, err)

	_, err = ReadRequest(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
