package accelerators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScripts(t *testing.T) {
	scripts, err := Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	require.Equal(t, "create_tasks_from_csv_import", scripts[0].Routine)
	require.Equal(t, "create_users_from_csv_import", scripts[1].Routine)
	for _, s := range scripts {
		require.True(t, strings.Contains(s.SQL, "CREATE OR REPLACE FUNCTION "+s.Routine+"("), s.Routine)
	}
}
