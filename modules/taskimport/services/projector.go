package services

import (
	"sort"
	"strings"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
)

type Defaults struct {
	Priority string
	Status   string
}

// Projection is the projector output: candidates in source order plus aggregated defects.
type Projection struct {
	Candidates []candidate.Task
	Defects    []candidate.Defect
	// Dropped counts rows discarded for having no name.
	Dropped int
}

// ProjectRows applies the field and value mappings to every row. It is pure: it
// never touches the store and never mutates rows or mappings.
func ProjectRows(rows []candidate.RawRow, set mapping.Set, defaults Defaults) Projection {
	active, dupes := activeFieldMappings(set.Fields)
	values := set.ValueIndex()

	var out Projection
	out.Defects = append(out.Defects, dupes...)
	out.Candidates = make([]candidate.Task, 0, len(rows))

	unmapped := make(map[mapping.ValueKey]*candidate.Defect)
	var unmappedOrder []mapping.ValueKey

	for i, row := range rows {
		rowNo := i + 1
		read := func(f mapping.TargetField) (string, *mapping.FieldMapping, bool) {
			fm, ok := active[f]
			if !ok {
				return "", nil, false
			}
			if v, fixed := fm.Fixed(); fixed {
				return v, fm, true
			}
			v := strings.TrimSpace(row[fm.SourceColumn])
			return v, fm, v != ""
		}

		name, _, ok := read(mapping.FieldName)
		if !ok {
			out.Dropped++
			continue
		}

		task := candidate.Task{
			SourceRow: rowNo,
			Name:      name,
			Priority:  defaults.Priority,
			Status:    defaults.Status,
		}
		task.Description, _, _ = read(mapping.FieldDescription)
		task.Assignee, _, _ = read(mapping.FieldAssignee)
		task.DueDate, _, _ = read(mapping.FieldDueDate)
		task.StartDate, _, _ = read(mapping.FieldStartDate)
		task.SuggestedID, _, _ = read(mapping.FieldID)

		for _, field := range []mapping.TargetField{mapping.FieldPriority, mapping.FieldStatus} {
			raw, fm, ok := read(field)
			if !ok {
				continue
			}
			resolved := raw
			if _, fixed := fm.Fixed(); !fixed {
				ft, _ := field.EnumType()
				key := mapping.ValueKey{Type: ft, Value: raw}
				target, mapped := values[key]
				if !mapped {
					d, seen := unmapped[key]
					if !seen {
						d = &candidate.Defect{Kind: candidate.DefectUnmappedValue, Field: string(field), Value: raw}
						unmapped[key] = d
						unmappedOrder = append(unmappedOrder, key)
					}
					d.Rows = append(d.Rows, rowNo)
					continue
				}
				resolved = target
			}
			if field == mapping.FieldPriority {
				task.Priority = resolved
			} else {
				task.Status = resolved
			}
		}

		out.Candidates = append(out.Candidates, task)
	}

	for _, key := range unmappedOrder {
		out.Defects = append(out.Defects, *unmapped[key])
	}
	return out
}

// activeFieldMappings keeps the first mapped mapping per target field and
// reports later ones as defects.
func activeFieldMappings(fields []mapping.FieldMapping) (map[mapping.TargetField]*mapping.FieldMapping, []candidate.Defect) {
	active := make(map[mapping.TargetField]*mapping.FieldMapping, len(fields))
	var dupes []candidate.Defect
	for i := range fields {
		fm := &fields[i]
		if !fm.Mapped || !fm.TargetField.Valid() {
			continue
		}
		if _, ok := active[fm.TargetField]; ok {
			dupes = append(dupes, candidate.Defect{
				Kind:  candidate.DefectDuplicateMapping,
				Field: string(fm.TargetField),
				Value: fm.SourceColumn,
			})
			continue
		}
		active[fm.TargetField] = fm
	}
	return active, dupes
}

// distinctValues returns the sorted distinct non-empty values of pick over tasks.
func distinctValues(tasks []candidate.Task, pick func(candidate.Task) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tasks {
		v := vocabKey(pick(t))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
