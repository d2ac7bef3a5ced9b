package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/jobs"
)

func TestCronRegistrations(t *testing.T) {
	cases := []struct {
		name string
		cfg  app.Config
		want int
	}{
		{"cache enabled", app.Config{PermissionCacheEnabled: true, WarmupCron: "*/15 * * * *"}, 1},
		{"cache disabled", app.Config{PermissionCacheEnabled: false, WarmupCron: "*/15 * * * *"}, 0},
		{"no schedule", app.Config{PermissionCacheEnabled: true}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cron, err := cronRegistrations(&tc.cfg)
			require.NoError(t, err)
			assert.Len(t, cron, tc.want)
		})
	}
}

func TestCronWarmupHasNoFixedIdentity(t *testing.T) {
	cron, err := cronRegistrations(&app.Config{PermissionCacheEnabled: true, WarmupCron: "@every 1m"})
	require.NoError(t, err)
	require.Len(t, cron, 1)
	assert.Equal(t, "@every 1m", cron[0].Spec)
	assert.Equal(t, jobs.TaskPermissionsWarmup, cron[0].Task.Type())

	var payload jobs.PermissionsWarmupPayload
	require.NoError(t, json.Unmarshal(cron[0].Task.Payload(), &payload))
	assert.Empty(t, payload.RunID)
}
