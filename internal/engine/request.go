package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"
)

// NewRecord creates a pending build record for req. Requests without a
// source are treated as manual.
func NewRecord(req types.BuildRequest, now time.Time) (*build.Record, error) {
	if req.ProjectID <= 0 {
		return nil, fmt.Errorf("build request has no project_id")
	}

	source := types.SourceManual
	if req.Source != "" {
		s, err := types.ParseSource(req.Source)
		if err != nil {
			return nil, err
		}
		source = s
	}

	fields := map[string]interface{}{
		"project_id": req.ProjectID,
		"source":     source,
	}
	if req.Branch != "" {
		fields["branch"] = req.Branch
	}
	if req.Tag != "" {
		fields["tag"] = req.Tag
	}
	if req.CommitID != "" {
		fields["commit_id"] = req.CommitID
	}
	if req.EnvironmentID != nil {
		fields["environment_id"] = *req.EnvironmentID
	}
	if req.UserID != nil {
		fields["user_id"] = *req.UserID
	}

	rec, err := build.New(fields)
	if err != nil {
		return nil, err
	}

	created := now
	if !req.RequestedAt.IsZero() {
		created = req.RequestedAt
	}
	if err := rec.MarkPending(created); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadRequest parses a build request file. YAML and JSON are accepted.
func ReadRequest(path string) (types.BuildRequest, error) {
	var req types.BuildRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read build request: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return req, fmt.Errorf("build request %s is empty", path)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse build request %s: %w", path, err)
	}
	if req.ProjectID <= 0 {
		return req, fmt.Errorf("build request %s has no project_id", path)
	}
	return req, nil
}
