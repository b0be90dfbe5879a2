package lead

import (
	"errors"
	"fmt"
	"strings"
)

// Field names a recognised lead attribute.
type Field string

const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldPlatform Field = "platform"
)

// RequiredFields is the fixed order used when reporting missing fields.
var RequiredFields = []Field{FieldName, FieldEmail, FieldPlatform}

// ErrIncompleteSubmission is returned when a submission is built from a partial record.
var ErrIncompleteSubmission = errors.New("lead record is incomplete")

// Info is a partial lead record. A missing key means the value is not yet known;
// values are stored as given, without validation.
type Info map[Field]string

// ParseField maps a loosely formatted key onto a recognised field.
func ParseField(raw string) (Field, bool) {
	key := Field(strings.ToLower(strings.TrimSpace(raw)))
	for _, f := range RequiredFields {
		if key == f {
			return f, true
		}
	}
	return "", false
}

// FromMap keeps only recognised keys from an arbitrary decoded JSON object.
// Null values are treated as "not found"; non-string scalars are stringified.
func FromMap(raw map[string]any) Info {
	info := Info{}
	for k, v := range raw {
		field, ok := ParseField(k)
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			info[field] = val
		default:
			info[field] = fmt.Sprint(val)
		}
	}
	return info
}

// Clone copies the record. A nil record clones to an empty one.
func (i Info) Clone() Info {
	out := make(Info, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

// Merge returns a new record where fields from update overwrite or add to i.
// Fields absent from update are left untouched.
func (i Info) Merge(update Info) Info {
	out := i.Clone()
	for k, v := range update {
		if _, ok := ParseField(string(k)); !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// Missing lists required fields that are not present, in RequiredFields order.
func (i Info) Missing() []Field {
	missing := make([]Field, 0, len(RequiredFields))
	for _, f := range RequiredFields {
		if _, ok := i[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every required field is present.
func (i Info) Complete() bool {
	return len(i.Missing()) == 0
}

// Empty reports whether no field is known.
func (i Info) Empty() bool {
	return len(i) == 0
}

// JoinFields renders fields as a comma separated list.
func JoinFields(fields []Field) string {
	parts := make([]string, len(fields))
	for idx, f := range fields {
		parts[idx] = string(f)
	}
	return strings.Join(parts, ", ")
}

// Submission is a completed lead ready for capture.
type Submission struct {
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email" validate:"email"`
	Platform  string `json:"platform"`
}

// NewSubmission builds a submission from a complete record.
func NewSubmission(sessionID string, info Info) (Submission, error) {
	if missing := info.Missing(); len(missing) > 0 {
		return Submission{}, fmt.Errorf("%w: missing %s", ErrIncompleteSubmission, JoinFields(missing))
	}
	return Submission{
		SessionID: sessionID,
		Name:      info[FieldName],
		Email:     info[FieldEmail],
		Platform:  info[FieldPlatform],
	}, nil
}
