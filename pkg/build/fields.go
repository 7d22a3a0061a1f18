package build

import (
	"time"

	"github.com/censor-ci/censor/pkg/types"
)

// field describes one schema column of a build record
type field struct {
	name string
	get  func(r *Record) interface{}
	set  func(r *Record, v interface{}) error
}

// schema lists the build columns in storage order
var schema = []field{
	int64Field("id", func(r *Record) **int64 { return &r.id }),
	int64Field("parent_id", func(r *Record) **int64 { return &r.parentID }),
	int64Field("project_id", func(r *Record) **int64 { return &r.projectID }),
	stringField("commit_id", func(r *Record) **string { return &r.commitID }),
	{
		name: "status",
		get: func(r *Record) interface{} {
			if r.status == nil {
				return nil
			}
			return *r.status
		},
		set: func(r *Record, v interface{}) error {
			if v == nil {
				r.status = nil
				return nil
			}
			var s types.Status
			switch tv := v.(type) {
			case types.Status:
				s = tv
			default:
				n, ok := toInt64(v)
				if !ok {
					return wrongType("status", "an int")
				}
				s = types.Status(n)
			}
			if !s.Valid() {
				return wrongType("status", "a valid status code")
			}
			r.status = &s
			return nil
		},
	},
	stringField("log", func(r *Record) **string { return &r.log }),
	stringField("branch", func(r *Record) **string { return &r.branch }),
	stringField("tag", func(r *Record) **string { return &r.tag }),
	timeField("create_date", func(r *Record) **time.Time { return &r.createDate }),
	timeField("start_date", func(r *Record) **time.Time { return &r.startDate }),
	timeField("finish_date", func(r *Record) **time.Time { return &r.finishDate }),
	stringField("committer_email", func(r *Record) **string { return &r.committerEmail }),
	stringField("commit_message", func(r *Record) **string { return &r.commitMessage }),
	{
		name: "extra",
		get: func(r *Record) interface{} {
			if r.extra == nil {
				return nil
			}
			return copyExtra(r.extra)
		},
		set: func(r *Record, v interface{}) error {
			if v == nil {
				r.extra = nil
				return nil
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				return wrongType("extra", "a map")
			}
			r.extra = copyExtra(m)
			return nil
		},
	},
	int64Field("environment_id", func(r *Record) **int64 { return &r.environmentID }),
	{
		name: "source",
		get:  func(r *Record) interface{} { return r.source },
		set: func(r *Record, v interface{}) error {
			var src types.Source
			switch tv := v.(type) {
			case types.Source:
				src = tv
			default:
				n, ok := toInt64(v)
				if !ok {
					return wrongType("source", "an int")
				}
				src = types.Source(n)
			}
			if !src.Valid() {
				return wrongType("source", "a known source code")
			}
			r.source = src
			return nil
		},
	},
	int64Field("user_id", func(r *Record) **int64 { return &r.userID }),
	intField("errors_total", func(r *Record) **int { return &r.errorsTotal }),
	intField("errors_total_previous", func(r *Record) **int { return &r.errorsTotalPrevious }),
	intField("errors_new", func(r *Record) **int { return &r.errorsNew }),
}

var schemaIndex = func() map[string]field {
	idx := make(map[string]field, len(schema))
	for _, f := range schema {
		idx[f.name] = f
	}
	return idx
}()

func int64Field(name string, ref func(r *Record) **int64) field {
	return field{
		name: name,
		get: func(r *Record) interface{} {
			if p := *ref(r); p != nil {
				return *p
			}
			return nil
		},
		set: func(r *Record, v interface{}) error {
			if v == nil {
				*ref(r) = nil
				return nil
			}
			n, ok := toInt64(v)
			if !ok {
				return wrongType(name, "an int")
			}
			*ref(r) = &n
			return nil
		},
	}
}

func intField(name string, ref func(r *Record) **int) field {
	return field{
		name: name,
		get: func(r *Record) interface{} {
			if p := *ref(r); p != nil {
				return *p
			}
			return nil
		},
		set: func(r *Record, v interface{}) error {
			if v == nil {
				*ref(r) = nil
				return nil
			}
			n, ok := toInt64(v)
			if !ok {
				return wrongType(name, "an int")
			}
			i := int(n)
			*ref(r) = &i
			return nil
		},
	}
}

func stringField(name string, ref func(r *Record) **string) field {
	return field{
		name: name,
		get: func(r *Record) interface{} {
			if p := *ref(r); p != nil {
				return *p
			}
			return nil
		},
		set: func(r *Record, v interface{}) error {
			switch tv := v.(type) {
			case nil:
				*ref(r) = nil
			case string:
				*ref(r) = &tv
			case *string:
				*ref(r) = copyPtr(tv)
			default:
				return wrongType(name, "a string")
			}
			return nil
		},
	}
}

func timeField(name string, ref func(r *Record) **time.Time) field {
	return field{
		name: name,
		get: func(r *Record) interface{} {
			if p := *ref(r); p != nil {
				return *p
			}
			return nil
		},
		set: func(r *Record, v interface{}) error {
			switch tv := v.(type) {
			case nil:
				*ref(r) = nil
			case time.Time:
				*ref(r) = &tv
			case *time.Time:
				*ref(r) = copyTime(tv)
			default:
				return wrongType(name, "a time")
			}
			return nil
		},
	}
}

// toInt64 accepts Go integer kinds only; strings and floats are rejected
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case *int64:
		if n == nil {
			return 0, false
		}
		return *n, true
	default:
		return 0, false
	}
}
