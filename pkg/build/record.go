// Package build models a single build attempt: its schema-checked fields,
// the free-form extra metadata, reported errors and the status lifecycle.
package build

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/censor-ci/censor/pkg/types"
)

// Record is the mutable entity describing one build attempt.
//
// Nullable columns are kept as pointers; Data reports them as nil when
// unset. Every method is safe for concurrent use.
type Record struct {
	mu sync.RWMutex

	id                  *int64
	parentID            *int64
	projectID           *int64
	commitID            *string
	status              *types.Status
	log                 *string
	branch              *string
	tag                 *string
	createDate          *time.Time
	startDate           *time.Time
	finishDate          *time.Time
	committerEmail      *string
	commitMessage       *string
	extra               map[string]interface{}
	environmentID       *int64
	source              types.Source
	userID              *int64
	errorsTotal         *int
	errorsTotalPrevious *int
	errorsNew           *int

	errors  []Error
	version int64
}

// New creates a build record from a field map. Unknown keys and wrongly
// typed values fail with an *InvalidFieldError naming the field. Fields
// not supplied stay null, except source which defaults to SourceUnknown.
func New(fields map[string]interface{}) (*Record, error) {
	r := &Record{source: types.SourceUnknown}

	// Apply in a stable order so the reported field is deterministic
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := r.set(k, fields[k]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FieldNames returns the schema field names in column order
func FieldNames() []string {
	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.name
	}
	return names
}

// Data returns every schema field. Null columns are reported as nil.
func (r *Record) Data() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := make(map[string]interface{}, len(schema))
	for _, f := range schema {
		data[f.name] = f.get(r)
	}
	return data
}

// Get returns a single field value by name
func (r *Record) Get(field string) (interface{}, error) {
	f, ok := schemaIndex[field]
	if !ok {
		return nil, unknownField(field)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return f.get(r), nil
}

// Set assigns a field by name after validating the name and value type
func (r *Record) Set(field string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(field, value)
}

func (r *Record) set(field string, value interface{}) error {
	f, ok := schemaIndex[field]
	if !ok {
		return unknownField(field)
	}
	return f.set(r, value)
}

// ID returns the build id, zero when not yet persisted
func (r *Record) ID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.id)
}

// HasID reports whether the record has been assigned an id
func (r *Record) HasID() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id != nil
}

// SetID assigns the build id
func (r *Record) SetID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = &id
}

// ParentID returns the id of the build this one was restarted from
func (r *Record) ParentID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.parentID)
}

// ProjectID returns the owning project id
func (r *Record) ProjectID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.projectID)
}

// SetProjectID assigns the owning project id
func (r *Record) SetProjectID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectID = &id
}

// CommitID returns the commit hash being built
func (r *Record) CommitID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.commitID)
}

// SetCommitID assigns the commit hash
func (r *Record) SetCommitID(commit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitID = &commit
}

// Branch returns the branch name
func (r *Record) Branch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.branch)
}

// SetBranch assigns the branch name
func (r *Record) SetBranch(branch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branch = &branch
}

// Tag returns the tag name, if the build was triggered for a tag
func (r *Record) Tag() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.tag)
}

// SetTag assigns the tag name
func (r *Record) SetTag(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tag = &tag
}

// Log returns the captured build log or nil
func (r *Record) Log() *string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.log == nil {
		return nil
	}
	s := *r.log
	return &s
}

// SetLog assigns the build log; nil clears it
func (r *Record) SetLog(log *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log == nil {
		r.log = nil
		return
	}
	s := *log
	r.log = &s
}

// CommitterEmail returns the committer's email address
func (r *Record) CommitterEmail() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.committerEmail)
}

// SetCommitterEmail assigns the committer's email address
func (r *Record) SetCommitterEmail(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committerEmail = &email
}

// CommitMessage returns the commit message
func (r *Record) CommitMessage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.commitMessage)
}

// SetCommitMessage assigns the commit message
func (r *Record) SetCommitMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitMessage = &msg
}

// Source returns what triggered the build
func (r *Record) Source() types.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// SetSource assigns the build source. Unknown codes are rejected.
func (r *Record) SetSource(src types.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set("source", src)
}

// EnvironmentID returns the deployment environment id
func (r *Record) EnvironmentID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.environmentID)
}

// UserID returns the id of the user who requested the build
func (r *Record) UserID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.userID)
}

// CreateDate returns when the build was created
func (r *Record) CreateDate() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyTime(r.createDate)
}

// StartDate returns when execution began
func (r *Record) StartDate() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyTime(r.startDate)
}

// FinishDate returns when the build reached a terminal status
func (r *Record) FinishDate() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyTime(r.finishDate)
}

// ErrorsTotal returns the number of reported errors
func (r *Record) ErrorsTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.errorsTotal)
}

// ErrorsTotalPrevious returns the error total of the previous build
func (r *Record) ErrorsTotalPrevious() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.errorsTotalPrevious)
}

// ErrorsNew returns the number of errors absent from the previous build
func (r *Record) ErrorsNew() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deref(r.errorsNew)
}

// SetExtra replaces the whole extra mapping
func (r *Record) SetExtra(extra map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if extra == nil {
		r.extra = nil
		return
	}
	r.extra = make(map[string]interface{}, len(extra))
	for k, v := range extra {
		r.extra[k] = v
	}
}

// AddExtraValue upserts one key in the extra mapping
func (r *Record) AddExtraValue(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extra == nil {
		r.extra = make(map[string]interface{})
	}
	r.extra[key] = value
}

// Extra returns the value stored under key, or nil when missing
func (r *Record) Extra(key string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.extra == nil {
		return nil
	}
	return r.extra[key]
}

// ExtraAll returns a copy of the full extra mapping
func (r *Record) ExtraAll() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyExtra(r.extra)
}

// StoreMeta upserts plugin metadata into extra. Keys are conventionally
// "<plugin>-<suffix>". The value must be JSON serialisable.
func (r *Record) StoreMeta(key string, value interface{}) error {
	if _, err := json.Marshal(value); err != nil {
		return &InvalidFieldError{
			Field:  "extra",
			Reason: fmt.Sprintf("meta value for %q is not serialisable: %v", key, err),
		}
	}
	r.AddExtraValue(key, value)
	return nil
}

// Version returns the optimistic locking counter maintained by stores
func (r *Record) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// SetVersion is used by stores after a successful save
func (r *Record) SetVersion(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = v
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Record{
		id:                  copyPtr(r.id),
		parentID:            copyPtr(r.parentID),
		projectID:           copyPtr(r.projectID),
		commitID:            copyPtr(r.commitID),
		status:              copyPtr(r.status),
		log:                 copyPtr(r.log),
		branch:              copyPtr(r.branch),
		tag:                 copyPtr(r.tag),
		createDate:          copyTime(r.createDate),
		startDate:           copyTime(r.startDate),
		finishDate:          copyTime(r.finishDate),
		committerEmail:      copyPtr(r.committerEmail),
		commitMessage:       copyPtr(r.commitMessage),
		extra:               copyExtra(r.extra),
		environmentID:       copyPtr(r.environmentID),
		source:              r.source,
		userID:              copyPtr(r.userID),
		errorsTotal:         copyPtr(r.errorsTotal),
		errorsTotalPrevious: copyPtr(r.errorsTotalPrevious),
		errorsNew:           copyPtr(r.errorsNew),
		version:             r.version,
	}
	c.errors = append([]Error(nil), r.errors...)
	return c
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(t *time.Time) *time.Time {
	return copyPtr(t)
}

func copyExtra(extra map[string]interface{}) map[string]interface{} {
	if extra == nil {
		return nil
	}
	out := make(map[string]interface{}, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
