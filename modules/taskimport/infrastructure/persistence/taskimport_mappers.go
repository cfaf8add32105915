package persistence

import (
	"database/sql"
	"time"

	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/models"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
)

func toDomainProject(m models.Project) services.Project {
	return services.Project{ID: m.ID, TeamID: m.TeamID, Name: m.Name}
}

func toDomainMember(m models.TeamMember) services.Member {
	return services.Member{
		TeamMemberID:    m.TeamMemberID,
		ProjectMemberID: m.ProjectMemberID,
		UserID:          m.UserID,
		Name:            m.Name,
		Email:           m.Email,
	}
}

func toDomainPriority(m models.TaskPriority) services.Priority {
	return services.Priority{ID: m.ID, Name: m.Name, Value: m.Value, Color: m.ColorCode}
}

func toDomainStatus(m models.TaskStatus) services.Status {
	return services.Status{
		ID:        m.ID,
		Name:      m.Name,
		Category:  m.Category,
		SortOrder: m.SortOrder,
		IsDone:    m.IsDone,
	}
}

func toDBTask(t services.TaskInsert) models.Task {
	return models.Task{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Name:        t.Name,
		Description: sql.NullString{String: t.Description, Valid: t.Description != ""},
		PriorityID:  t.PriorityID,
		StatusID:    t.StatusID,
		SortOrder:   t.SortOrder,
		StartDate:   nullTime(t.StartDate),
		EndDate:     nullTime(t.DueDate),
		ReporterID:  t.ReporterID,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
