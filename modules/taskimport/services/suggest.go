package services

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
)

type keywordRule struct {
	field    mapping.TargetField
	keywords []string
}

// Header keywords in precedence order. Columns matching none stay unmapped.
var fieldRules = []keywordRule{
	{mapping.FieldName, []string{"name", "title", "summary", "task", "taskname"}},
	{mapping.FieldDescription, []string{"description", "desc", "details"}},
	{mapping.FieldAssignee, []string{"assignee", "assigned", "owner", "responsible"}},
	{mapping.FieldDueDate, []string{"duedate", "due", "deadline", "enddate"}},
	{mapping.FieldPriority, []string{"priority", "prio", "importance"}},
	{mapping.FieldStatus, []string{"status", "state", "stage"}},
	{mapping.FieldStartDate, []string{"startdate", "start", "begin"}},
}

var idHeaders = map[string]struct{}{"id": {}, "uuid": {}, "taskid": {}, "taskuuid": {}}

type valueRule struct {
	target   string
	keywords []string
}

var priorityRules = []valueRule{
	{"Low", []string{"low", "minor", "trivial", "1"}},
	{"High", []string{"high", "critical", "urgent", "blocker", "3", "4", "5"}},
	{"Medium", []string{"medium", "normal", "major", "2"}},
}

var statusRules = []valueRule{
	{"To Do", []string{"todo", "open", "new", "backlog", "pending"}},
	{"In Progress", []string{"inprogress", "progress", "working", "active", "started"}},
	{"Done", []string{"done", "completed", "closed", "resolved", "finished"}},
}

// foldKey lower-cases s, strips diacritics and drops everything but letters and digits.
func foldKey(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SuggestFieldMappings guesses a target field for each header. Each target is
// assigned to the first header that matches it.
func SuggestFieldMappings(headers []string) []mapping.FieldMapping {
	taken := make(map[mapping.TargetField]bool)
	out := make([]mapping.FieldMapping, 0, len(headers))
	for _, h := range headers {
		fm := mapping.FieldMapping{SourceColumn: h}
		key := foldKey(h)
		var target mapping.TargetField
		if _, ok := idHeaders[key]; ok {
			target = mapping.FieldID
		} else {
			for _, rule := range fieldRules {
				if containsAny(key, rule.keywords) {
					target = rule.field
					break
				}
			}
		}
		if target != "" && !taken[target] {
			taken[target] = true
			fm.TargetField = target
			fm.Mapped = true
			fm.Required = target == mapping.FieldName
		}
		out = append(out, fm)
	}
	return out
}

// SuggestValueMappings proposes a target for every distinct value observed in
// the mapped priority and status columns.
func SuggestValueMappings(rows []candidate.RawRow, fields []mapping.FieldMapping, priorities, statuses []string, defaults Defaults) []mapping.ValueMapping {
	active, _ := activeFieldMappings(fields)
	var out []mapping.ValueMapping
	for _, col := range []struct {
		field    mapping.TargetField
		typ      mapping.FieldType
		vocab    []string
		rules    []valueRule
		fallback string
	}{
		{mapping.FieldPriority, mapping.TypePriority, priorities, priorityRules, defaults.Priority},
		{mapping.FieldStatus, mapping.TypeStatus, statuses, statusRules, defaults.Status},
	} {
		fm, ok := active[col.field]
		if !ok {
			continue
		}
		if _, fixed := fm.Fixed(); fixed {
			continue
		}
		seen := make(map[string]struct{})
		for _, row := range rows {
			v := strings.TrimSpace(row[fm.SourceColumn])
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, mapping.ValueMapping{
				SourceValue: v,
				TargetValue: suggestValue(v, col.vocab, col.rules, col.fallback),
				FieldType:   col.typ,
			})
		}
	}
	return out
}

func suggestValue(value string, vocab []string, rules []valueRule, fallback string) string {
	key := foldKey(value)
	for _, name := range vocab {
		if foldKey(name) == key {
			return name
		}
	}
	for _, rule := range rules {
		if containsAny(key, rule.keywords) && inVocab(rule.target, vocab) {
			return rule.target
		}
	}
	if ranks := fuzzy.RankFindNormalizedFold(value, vocab); len(ranks) > 0 {
		best := ranks[0]
		for _, r := range ranks[1:] {
			if r.Distance < best.Distance {
				best = r
			}
		}
		return best.Target
	}
	return fallback
}

// SuggestIdentityMappings maps assignees that match a team member by email and
// proposes creating the rest when they look like an address.
func SuggestIdentityMappings(rows []candidate.RawRow, fields []mapping.FieldMapping, members []Member) []mapping.IdentityMapping {
	active, _ := activeFieldMappings(fields)
	fm, ok := active[mapping.FieldAssignee]
	if !ok {
		return nil
	}
	byEmail := make(map[string]Member, len(members))
	for _, m := range members {
		byEmail[mapping.NormalizeIdentity(m.Email)] = m
	}

	seen := make(map[string]struct{})
	var out []mapping.IdentityMapping
	for _, row := range rows {
		v := row[fm.SourceColumn]
		if fixed, ok := fm.Fixed(); ok {
			v = fixed
		}
		v = strings.TrimSpace(v)
		key := mapping.NormalizeIdentity(v)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if m, ok := byEmail[key]; ok {
			out = append(out, mapping.IdentityMapping{
				SourceIdentity:  v,
				Action:          mapping.ActionMap,
				TargetMemberRef: m.TeamMemberID.String(),
			})
			continue
		}
		im := mapping.IdentityMapping{SourceIdentity: v, Action: mapping.ActionSkip}
		if mapping.LooksLikeEmail(v) {
			im.Action = mapping.ActionCreate
			im.TargetEmail = v
		}
		out = append(out, im)
	}
	return out
}

// Suggest builds a complete mapping set for a project from a parsed table.
func (s *ImportService) Suggest(ctx context.Context, projectID uuid.UUID, headers []string, rows []candidate.RawRow) (mapping.Set, error) {
	if len(headers) == 0 {
		return mapping.Set{}, newServiceError(http.StatusBadRequest, "IMPORT_HEADERS_REQUIRED", "headers are required", nil)
	}
	template, err := s.Template(ctx, projectID)
	if err != nil {
		return mapping.Set{}, err
	}

	priorities := make([]string, 0, len(template.Priorities))
	for _, p := range template.Priorities {
		priorities = append(priorities, p.Name)
	}
	statuses := make([]string, 0, len(template.Statuses))
	for _, st := range template.Statuses {
		statuses = append(statuses, st.Name)
	}

	fields := SuggestFieldMappings(headers)
	set := mapping.Set{
		Fields:     fields,
		Values:     SuggestValueMappings(rows, fields, priorities, statuses, s.opts.Defaults),
		Identities: SuggestIdentityMappings(rows, fields, template.TeamMembers),
	}
	logWithFields(ctx, logrus.DebugLevel, "taskimport: mapping suggested", logrus.Fields{
		"project_id": projectID,
		"headers":    len(headers),
		"values":     len(set.Values),
		"identities": len(set.Identities),
	})
	return set, nil
}

// SuggestOffline is Suggest without a store, using only the default vocabulary.
func SuggestOffline(headers []string, rows []candidate.RawRow, defaults Defaults) mapping.Set {
	fields := SuggestFieldMappings(headers)
	return mapping.Set{
		Fields:     fields,
		Values:     SuggestValueMappings(rows, fields, defaultPriorityNames, defaultStatusNames, defaults),
		Identities: SuggestIdentityMappings(rows, fields, nil),
	}
}

var (
	defaultPriorityNames = []string{"Low", "Medium", "High"}
	defaultStatusNames   = []string{"To Do", "In Progress", "Done"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func inVocab(name string, vocab []string) bool {
	if len(vocab) == 0 {
		return true
	}
	for _, v := range vocab {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
