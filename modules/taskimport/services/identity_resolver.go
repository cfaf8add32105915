package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/composables"
)

// Assignment is a fully resolved assignee: both member references are present.
type Assignment struct {
	TeamMemberID    uuid.UUID `json:"team_member_id"`
	ProjectMemberID uuid.UUID `json:"project_member_id"`
}

// Resolution maps normalized source identities to assignments for one import.
type Resolution struct {
	TeamMembers    map[string]uuid.UUID
	ProjectMembers map[string]uuid.UUID
	Warnings       []report.Issue
}

func newResolution() Resolution {
	return Resolution{
		TeamMembers:    make(map[string]uuid.UUID),
		ProjectMembers: make(map[string]uuid.UUID),
	}
}

// For returns the assignment of an identity only when both member ids resolved.
func (r Resolution) For(identity string) (Assignment, bool) {
	key := mapping.NormalizeIdentity(identity)
	if key == "" {
		return Assignment{}, false
	}
	tm, ok := r.TeamMembers[key]
	if !ok {
		return Assignment{}, false
	}
	pm, ok := r.ProjectMembers[key]
	if !ok {
		return Assignment{}, false
	}
	return Assignment{TeamMemberID: tm, ProjectMemberID: pm}, true
}

type IdentityResolver struct {
	members     MemberRepository
	accelerator AcceleratorRepository
	cache       *CapabilityCache
	routine     string
	enabled     bool
}

func NewIdentityResolver(members MemberRepository, accelerator AcceleratorRepository, cache *CapabilityCache, routine string, enabled bool) *IdentityResolver {
	return &IdentityResolver{
		members:     members,
		accelerator: accelerator,
		cache:       cache,
		routine:     routine,
		enabled:     enabled,
	}
}

type pendingIdentity struct {
	raw      string
	byID     uuid.UUID
	byEmail  string
	provided bool
}

type provisionRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	// ProjectID asks the routine to also add the member to the project.
	ProjectID uuid.UUID `json:"project_id"`
}

// Resolve maps every distinct candidate assignee to member references.
// Identity problems degrade to warnings and never fail the import.
func (r *IdentityResolver) Resolve(ctx context.Context, candidates []candidate.Task, set mapping.Set, project Project, actor composables.Actor) (Resolution, error) {
	res := newResolution()
	idx := set.IdentityIndex()

	pending := make(map[string]*pendingIdentity)
	var order []string
	for _, c := range candidates {
		key := mapping.NormalizeIdentity(c.Assignee)
		if key == "" {
			continue
		}
		if _, ok := pending[key]; ok {
			continue
		}
		order = append(order, key)
		p := &pendingIdentity{raw: c.Assignee}
		pending[key] = p

		m, mapped := idx[key]
		switch {
		case !mapped:
			if mapping.LooksLikeEmail(c.Assignee) {
				p.byEmail = key
			}
		case m.Action == mapping.ActionSkip:
			delete(pending, key)
		case m.Action == mapping.ActionMap:
			p.byID, p.byEmail, _ = mapping.MemberRef(m.TargetMemberRef)
		case m.Action == mapping.ActionCreate:
			p.byEmail = mapping.NormalizeIdentity(m.TargetEmail)
			p.provided = true
		}
	}

	provisioned := r.provision(ctx, set, project, actor)

	var emails []string
	var ids []uuid.UUID
	for _, key := range order {
		p, ok := pending[key]
		if !ok {
			continue
		}
		if p.byID != uuid.Nil {
			ids = append(ids, p.byID)
		} else if p.byEmail != "" {
			emails = append(emails, p.byEmail)
		}
	}
	emails = uniqueStrings(emails)

	byEmail := make(map[string]Member)
	byID := make(map[uuid.UUID]Member)
	if len(emails) > 0 {
		found, err := r.members.FindByEmails(ctx, project.TeamID, project.ID, emails)
		if err != nil {
			return Resolution{}, fmt.Errorf("member lookup: %w", err)
		}
		for _, m := range found {
			byEmail[mapping.NormalizeIdentity(m.Email)] = m
		}
	}
	if len(ids) > 0 {
		found, err := r.members.FindByIDs(ctx, project.TeamID, project.ID, ids)
		if err != nil {
			return Resolution{}, fmt.Errorf("member lookup: %w", err)
		}
		for _, m := range found {
			byID[m.TeamMemberID] = m
		}
	}

	for _, key := range order {
		p, ok := pending[key]
		if !ok {
			continue
		}
		var (
			member Member
			found  bool
		)
		switch {
		case p.byID != uuid.Nil:
			member, found = byID[p.byID]
		case p.byEmail != "":
			member, found = byEmail[p.byEmail]
		}

		if !found {
			issueType := report.IssueAssigneeUnresolved
			reason := "unresolved"
			msg := fmt.Sprintf("Assignee %q was not found in the team; task imported unassigned", p.raw)
			if p.provided && !provisioned[p.byEmail] {
				issueType = report.IssueProvisionFailed
				reason = "provisioning_unavailable"
				msg = fmt.Sprintf("Assignee %q could not be created; task imported unassigned", p.raw)
			}
			recordIdentityDegraded(reason)
			res.Warnings = append(res.Warnings, report.Issue{
				Type:    issueType,
				Field:   "assignee",
				Value:   p.raw,
				Email:   p.byEmail,
				Message: msg,
			})
			continue
		}

		res.TeamMembers[key] = member.TeamMemberID
		if !member.ProjectMemberID.Valid {
			recordIdentityDegraded("not_project_member")
			res.Warnings = append(res.Warnings, report.Issue{
				Type:    report.IssueAssigneeNotMember,
				Field:   "assignee",
				Value:   p.raw,
				Email:   member.Email,
				Message: fmt.Sprintf("Assignee %q is not a member of project %s; task imported unassigned", p.raw, project.Name),
			})
			continue
		}
		res.ProjectMembers[key] = member.ProjectMemberID.UUID
	}

	return res, nil
}

// provision creates members for create mappings through the optional routine.
// It returns the emails it handed to the routine successfully.
func (r *IdentityResolver) provision(ctx context.Context, set mapping.Set, project Project, actor composables.Actor) map[string]bool {
	done := make(map[string]bool)

	var requests []provisionRequest
	seen := make(map[string]struct{})
	for _, m := range set.Identities {
		if m.Action != mapping.ActionCreate || !mapping.LooksLikeEmail(m.TargetEmail) {
			continue
		}
		email := mapping.NormalizeIdentity(m.TargetEmail)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		requests = append(requests, provisionRequest{Email: email, Name: m.SourceIdentity, ProjectID: project.ID})
	}
	if len(requests) == 0 {
		return done
	}

	degrade := func(reason string, err error) {
		fields := logrus.Fields{"project_id": project.ID, "count": len(requests), "reason": reason}
		if err != nil {
			fields["error"] = err.Error()
		}
		logWithFields(ctx, logrus.WarnLevel, "taskimport: member provisioning skipped", fields)
	}

	if !r.enabled || r.accelerator == nil {
		degrade("disabled", nil)
		return done
	}

	var available bool
	err := inSavepointFn(ctx, func(spCtx context.Context) error {
		var err error
		available, err = r.cache.Available(spCtx, r.routine, r.accelerator.RoutineExists)
		return err
	})
	if err != nil {
		degrade("probe_error", err)
		return done
	}
	if !available {
		degrade("unavailable", nil)
		return done
	}

	payload, err := json.Marshal(requests)
	if err != nil {
		degrade("encode_error", err)
		return done
	}
	err = inSavepointFn(ctx, func(spCtx context.Context) error {
		_, err := r.accelerator.CallUsersRoutine(spCtx, r.routine, project.TeamID, payload, actor.UserID)
		return err
	})
	if err != nil {
		degrade("routine_error", err)
		return done
	}
	for _, req := range requests {
		done[req.Email] = true
	}
	return done
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
