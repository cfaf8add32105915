package mapping

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validSet() Set {
	return Set{
		Fields: []FieldMapping{
			{SourceColumn: "Title", TargetField: FieldName, Mapped: true, Required: true},
			{SourceColumn: "Prio", TargetField: FieldPriority, Mapped: true},
		},
		Values: []ValueMapping{
			{SourceValue: "hi", TargetValue: "High", FieldType: TypePriority},
		},
		Identities: []IdentityMapping{
			{SourceIdentity: "Bob", Action: ActionMap, TargetMemberRef: "bob@example.com"},
			{SourceIdentity: "new@example.com", Action: ActionCreate},
			{SourceIdentity: "ghost", Action: ActionSkip},
		},
	}
}

func TestSetValidate_Valid(t *testing.T) {
	s := validSet()
	s.Normalize()
	require.NoError(t, s.Validate())
	require.Equal(t, "new@example.com", s.Identities[1].TargetEmail)
}

func TestSetValidate_CollectsProblems(t *testing.T) {
	s := Set{
		Fields: []FieldMapping{
			{SourceColumn: "X", TargetField: "labels", Mapped: true},
			{TargetField: FieldDescription, Mapped: true},
			{SourceColumn: "Ignored", TargetField: "whatever", Mapped: false},
		},
		Values: []ValueMapping{
			{SourceValue: "a", TargetValue: "High", FieldType: TypePriority},
			{SourceValue: "a", TargetValue: "Low", FieldType: TypePriority},
			{SourceValue: "a", TargetValue: "Done", FieldType: "color"},
		},
		Identities: []IdentityMapping{
			{SourceIdentity: "Ann", Action: ActionMap},
			{SourceIdentity: "ann", Action: ActionSkip},
			{SourceIdentity: "Zed", Action: ActionCreate, TargetEmail: "not-an-email"},
			{SourceIdentity: "Kim", Action: ActionMap, TargetMemberRef: "kim"},
			{SourceIdentity: "Lee", Action: "merge"},
		},
	}

	err := s.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidMapping))

	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	paths := make([]string, 0, len(shapeErr.Problems))
	for _, p := range shapeErr.Problems {
		paths = append(paths, p.Path)
	}
	require.ElementsMatch(t, []string{
		"field_mappings[0]",
		"field_mappings[1]",
		"field_mappings",
		"value_mappings[1]",
		"value_mappings[2]",
		"identity_mappings[0]",
		"identity_mappings[1]",
		"identity_mappings[2]",
		"identity_mappings[3]",
		"identity_mappings[4]",
	}, paths)
}

func TestSetValidate_FixedValueSatisfiesSource(t *testing.T) {
	s := Set{Fields: []FieldMapping{
		{TargetField: FieldName, Mapped: true, FixedValue: strPtr("Imported task")},
	}}
	require.NoError(t, s.Validate())
}

func TestSetNormalize_ClearsEmptyFixedValue(t *testing.T) {
	s := Set{Fields: []FieldMapping{
		{SourceColumn: "Title", TargetField: FieldName, Mapped: true, FixedValue: strPtr(" ")},
		{SourceColumn: "Prio", TargetField: FieldPriority, Mapped: true, FixedValue: strPtr(" High ")},
		{TargetField: FieldStatus, Mapped: true, FixedValue: strPtr("")},
	}}
	s.Normalize()

	require.Nil(t, s.Fields[0].FixedValue)
	v, ok := s.Fields[1].Fixed()
	require.True(t, ok)
	require.Equal(t, "High", v)

	var shapeErr *ShapeError
	require.ErrorAs(t, s.Validate(), &shapeErr)
	require.Len(t, shapeErr.Problems, 1)
	require.Equal(t, "field_mappings[2]", shapeErr.Problems[0].Path)
}

func TestIndexes_FirstWins(t *testing.T) {
	s := Set{
		Values: []ValueMapping{
			{SourceValue: "x", TargetValue: "High", FieldType: TypePriority},
			{SourceValue: "x", TargetValue: "Done", FieldType: TypeStatus},
		},
		Identities: []IdentityMapping{
			{SourceIdentity: " Bob ", Action: ActionSkip},
			{SourceIdentity: "BOB", Action: ActionCreate, TargetEmail: "b@x.io"},
		},
	}
	vi := s.ValueIndex()
	require.Equal(t, "High", vi[ValueKey{Type: TypePriority, Value: "x"}])
	require.Equal(t, "Done", vi[ValueKey{Type: TypeStatus, Value: "x"}])

	ii := s.IdentityIndex()
	require.Equal(t, ActionSkip, ii["bob"].Action)
}

func TestMemberRef(t *testing.T) {
	id := uuid.New()
	gotID, gotEmail, ok := MemberRef(id.String())
	require.True(t, ok)
	require.Equal(t, id, gotID)
	require.Empty(t, gotEmail)

	gotID, gotEmail, ok = MemberRef("Ann@Example.com")
	require.True(t, ok)
	require.Equal(t, uuid.Nil, gotID)
	require.Equal(t, "ann@example.com", gotEmail)

	_, _, ok = MemberRef("ann")
	require.False(t, ok)
}

func TestTargetFieldEnumType(t *testing.T) {
	ft, ok := FieldPriority.EnumType()
	require.True(t, ok)
	require.Equal(t, TypePriority, ft)
	_, ok = FieldName.EnumType()
	require.False(t, ok)
}
