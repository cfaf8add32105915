package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/modules/taskimport/services"
)

func TestToDBTask_EmptyDescriptionIsNull(t *testing.T) {
	task := services.TaskInsert{ProjectID: uuid.New(), Name: "Ship"}
	require.False(t, toDBTask(task).Description.Valid)

	task.Description = "details"
	desc := toDBTask(task).Description
	require.True(t, desc.Valid)
	require.Equal(t, "details", desc.String)
}
