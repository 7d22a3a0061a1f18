package build

import (
	"encoding/json"
	"time"

	"github.com/censor-ci/censor/pkg/types"
)

type recordJSON struct {
	ID                  *int64                 `json:"id"`
	ParentID            *int64                 `json:"parent_id"`
	ProjectID           *int64                 `json:"project_id"`
	CommitID            *string                `json:"commit_id"`
	Status              *types.Status          `json:"status"`
	Log                 *string                `json:"log"`
	Branch              *string                `json:"branch"`
	Tag                 *string                `json:"tag"`
	CreateDate          *time.Time             `json:"create_date"`
	StartDate           *time.Time             `json:"start_date"`
	FinishDate          *time.Time             `json:"finish_date"`
	CommitterEmail      *string                `json:"committer_email"`
	CommitMessage       *string                `json:"commit_message"`
	Extra               map[string]interface{} `json:"extra"`
	EnvironmentID       *int64                 `json:"environment_id"`
	Source              types.Source           `json:"source"`
	UserID              *int64                 `json:"user_id"`
	ErrorsTotal         *int                   `json:"errors_total"`
	ErrorsTotalPrevious *int                   `json:"errors_total_previous"`
	ErrorsNew           *int                   `json:"errors_new"`
	Errors              []Error                `json:"errors,omitempty"`
	Version             int64                  `json:"version"`
}

// MarshalJSON implements json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return json.Marshal(recordJSON{
		ID:                  r.id,
		ParentID:            r.parentID,
		ProjectID:           r.projectID,
		CommitID:            r.commitID,
		Status:              r.status,
		Log:                 r.log,
		Branch:              r.branch,
		Tag:                 r.tag,
		CreateDate:          r.createDate,
		StartDate:           r.startDate,
		FinishDate:          r.finishDate,
		CommitterEmail:      r.committerEmail,
		CommitMessage:       r.commitMessage,
		Extra:               r.extra,
		EnvironmentID:       r.environmentID,
		Source:              r.source,
		UserID:              r.userID,
		ErrorsTotal:         r.errorsTotal,
		ErrorsTotalPrevious: r.errorsTotalPrevious,
		ErrorsNew:           r.errorsNew,
		Errors:              r.errors,
		Version:             r.version,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Status != nil && !in.Status.Valid() {
		return wrongType("status", "a valid status code")
	}
	if !in.Source.Valid() {
		return wrongType("source", "a known source code")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.id = in.ID
	r.parentID = in.ParentID
	r.projectID = in.ProjectID
	r.commitID = in.CommitID
	r.status = in.Status
	r.log = in.Log
	r.branch = in.Branch
	r.tag = in.Tag
	r.createDate = in.CreateDate
	r.startDate = in.StartDate
	r.finishDate = in.FinishDate
	r.committerEmail = in.CommitterEmail
	r.commitMessage = in.CommitMessage
	r.extra = in.Extra
	r.environmentID = in.EnvironmentID
	r.source = in.Source
	r.userID = in.UserID
	r.errorsTotal = in.ErrorsTotal
	r.errorsTotalPrevious = in.ErrorsTotalPrevious
	r.errorsNew = in.ErrorsNew
	r.errors = in.Errors
	r.version = in.Version
	return nil
}
