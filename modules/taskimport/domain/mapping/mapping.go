package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/pkg/constants"
)

// TargetField is a task attribute a source column can feed.
type TargetField string

const (
	FieldID          TargetField = "id"
	FieldName        TargetField = "name"
	FieldDescription TargetField = "description"
	FieldAssignee    TargetField = "assignee"
	FieldDueDate     TargetField = "dueDate"
	FieldStartDate   TargetField = "startDate"
	FieldStatus      TargetField = "status"
	FieldPriority    TargetField = "priority"
)

var (
	RequiredFields = []TargetField{FieldName}
	OptionalFields = []TargetField{FieldDescription, FieldAssignee, FieldDueDate, FieldStartDate, FieldStatus, FieldPriority, FieldID}
)

func (f TargetField) Valid() bool {
	switch f {
	case FieldID, FieldName, FieldDescription, FieldAssignee, FieldDueDate, FieldStartDate, FieldStatus, FieldPriority:
		return true
	}
	return false
}

// FieldType names an enumerated target vocabulary.
type FieldType string

const (
	TypePriority FieldType = "priority"
	TypeStatus   FieldType = "status"
)

func (t FieldType) Valid() bool {
	return t == TypePriority || t == TypeStatus
}

// EnumType returns the vocabulary a target field draws from, if any.
func (f TargetField) EnumType() (FieldType, bool) {
	switch f {
	case FieldPriority:
		return TypePriority, true
	case FieldStatus:
		return TypeStatus, true
	}
	return "", false
}

type Action string

const (
	ActionCreate Action = "create"
	ActionMap    Action = "map"
	ActionSkip   Action = "skip"
)

type FieldMapping struct {
	SourceColumn string      `json:"source_column" yaml:"source_column" toml:"source_column"`
	TargetField  TargetField `json:"target_field" yaml:"target_field" toml:"target_field"`
	Required     bool        `json:"required" yaml:"required" toml:"required"`
	Mapped       bool        `json:"mapped" yaml:"mapped" toml:"mapped"`
	// FixedValue, when non-empty, replaces the source value of every row.
	FixedValue *string `json:"fixed_value,omitempty" yaml:"fixed_value,omitempty" toml:"fixed_value,omitempty"`
}

// Fixed returns the pinned value. An empty pin counts as unset.
func (f FieldMapping) Fixed() (string, bool) {
	if f.FixedValue == nil {
		return "", false
	}
	v := strings.TrimSpace(*f.FixedValue)
	return v, v != ""
}

type ValueMapping struct {
	SourceValue string    `json:"source_value" yaml:"source_value" toml:"source_value"`
	TargetValue string    `json:"target_value" yaml:"target_value" toml:"target_value"`
	FieldType   FieldType `json:"field_type" yaml:"field_type" toml:"field_type"`
}

type IdentityMapping struct {
	SourceIdentity string `json:"source_identity" yaml:"source_identity" toml:"source_identity"`
	Action         Action `json:"action" yaml:"action" toml:"action"`
	// TargetEmail is the address of the member to provision for ActionCreate.
	TargetEmail string `json:"target_email,omitempty" yaml:"target_email,omitempty" toml:"target_email,omitempty"`
	// TargetMemberRef is a team member id or email for ActionMap.
	TargetMemberRef string `json:"target_member_ref,omitempty" yaml:"target_member_ref,omitempty" toml:"target_member_ref,omitempty"`
}

// Set bundles the three mapping kinds produced for one import.
type Set struct {
	Fields     []FieldMapping    `json:"field_mappings" yaml:"field_mappings" toml:"field_mappings"`
	Values     []ValueMapping    `json:"value_mappings" yaml:"value_mappings" toml:"value_mappings"`
	Identities []IdentityMapping `json:"identity_mappings" yaml:"identity_mappings" toml:"identity_mappings"`
}

var ErrInvalidMapping = errors.New("invalid mapping")

type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ShapeError lists every structural problem found in a Set.
type ShapeError struct {
	Problems []Problem
}

func (e *ShapeError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Path+": "+p.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidMapping, strings.Join(parts, "; "))
}

func (e *ShapeError) Unwrap() error { return ErrInvalidMapping }

// Normalize trims free text and fills a create mapping's email from an
// email-looking source identity.
func (s *Set) Normalize() {
	for i := range s.Fields {
		f := &s.Fields[i]
		f.SourceColumn = strings.TrimSpace(f.SourceColumn)
		f.TargetField = TargetField(strings.TrimSpace(string(f.TargetField)))
		if v, ok := f.Fixed(); ok {
			f.FixedValue = &v
		} else {
			f.FixedValue = nil
		}
	}
	for i := range s.Values {
		v := &s.Values[i]
		v.SourceValue = strings.TrimSpace(v.SourceValue)
		v.TargetValue = strings.TrimSpace(v.TargetValue)
		v.FieldType = FieldType(strings.ToLower(strings.TrimSpace(string(v.FieldType))))
	}
	for i := range s.Identities {
		m := &s.Identities[i]
		m.SourceIdentity = strings.TrimSpace(m.SourceIdentity)
		m.Action = Action(strings.ToLower(strings.TrimSpace(string(m.Action))))
		m.TargetEmail = strings.TrimSpace(m.TargetEmail)
		m.TargetMemberRef = strings.TrimSpace(m.TargetMemberRef)
		if m.Action == ActionCreate && m.TargetEmail == "" && LooksLikeEmail(m.SourceIdentity) {
			m.TargetEmail = m.SourceIdentity
		}
	}
}

// Validate checks the shape of the set only. It never consults the store.
func (s Set) Validate() error {
	var problems []Problem
	add := func(path, format string, args ...any) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	nameMapped := false
	for i, f := range s.Fields {
		path := fmt.Sprintf("field_mappings[%d]", i)
		if !f.Mapped {
			continue
		}
		if !f.TargetField.Valid() {
			add(path, "unknown target field %q", f.TargetField)
			continue
		}
		if _, fixed := f.Fixed(); f.SourceColumn == "" && !fixed {
			add(path, "source column or fixed value is required")
		}
		if f.TargetField == FieldName {
			nameMapped = true
		}
	}
	if !nameMapped {
		add("field_mappings", "task name must be mapped")
	}

	seenValues := make(map[ValueKey]int, len(s.Values))
	for i, v := range s.Values {
		path := fmt.Sprintf("value_mappings[%d]", i)
		if !v.FieldType.Valid() {
			add(path, "unknown field type %q", v.FieldType)
			continue
		}
		if v.SourceValue == "" {
			add(path, "source value is required")
		}
		if v.TargetValue == "" {
			add(path, "target value is required")
		}
		key := ValueKey{Type: v.FieldType, Value: v.SourceValue}
		if j, ok := seenValues[key]; ok {
			add(path, "duplicates value_mappings[%d]", j)
			continue
		}
		seenValues[key] = i
	}

	seenIdentities := make(map[string]int, len(s.Identities))
	for i, m := range s.Identities {
		path := fmt.Sprintf("identity_mappings[%d]", i)
		if m.SourceIdentity == "" {
			add(path, "source identity is required")
			continue
		}
		key := NormalizeIdentity(m.SourceIdentity)
		if j, ok := seenIdentities[key]; ok {
			add(path, "duplicates identity_mappings[%d]", j)
			continue
		}
		seenIdentities[key] = i

		switch m.Action {
		case ActionMap:
			if m.TargetMemberRef == "" {
				add(path, "map requires a target member")
			} else if _, _, ok := MemberRef(m.TargetMemberRef); !ok {
				add(path, "target member must be a member id or an email")
			}
		case ActionCreate:
			if !LooksLikeEmail(m.TargetEmail) {
				add(path, "create requires a valid email")
			}
		case ActionSkip:
		default:
			add(path, "unknown action %q", m.Action)
		}
	}

	if len(problems) > 0 {
		return &ShapeError{Problems: problems}
	}
	return nil
}

type ValueKey struct {
	Type  FieldType
	Value string
}

// ValueIndex keys value mappings by field type and exact source value.
func (s Set) ValueIndex() map[ValueKey]string {
	idx := make(map[ValueKey]string, len(s.Values))
	for _, v := range s.Values {
		key := ValueKey{Type: v.FieldType, Value: v.SourceValue}
		if _, ok := idx[key]; !ok {
			idx[key] = v.TargetValue
		}
	}
	return idx
}

// IdentityIndex keys identity mappings by normalized source identity.
func (s Set) IdentityIndex() map[string]IdentityMapping {
	idx := make(map[string]IdentityMapping, len(s.Identities))
	for _, m := range s.Identities {
		key := NormalizeIdentity(m.SourceIdentity)
		if _, ok := idx[key]; !ok {
			idx[key] = m
		}
	}
	return idx
}

func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func LooksLikeEmail(s string) bool {
	if s == "" || !strings.Contains(s, "@") {
		return false
	}
	return constants.Validate.Var(s, "email") == nil
}

// MemberRef splits a map target into a team member id or an email.
func MemberRef(ref string) (uuid.UUID, string, bool) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return id, "", true
	}
	if LooksLikeEmail(ref) {
		return uuid.Nil, strings.ToLower(ref), true
	}
	return uuid.Nil, "", false
}
