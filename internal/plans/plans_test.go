// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package plans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenith-tasks/zenith"
)

func TestGet(t *testing.T) {
	plan, err := Get(PLAN_ID_PRO)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), plan.MonthlyCredits)
	assert.True(t, plan.Renews())

	plan, err = Get(PLAN_ID_FREE)
	require.NoError(t, err)
	assert.False(t, plan.Renews())

	_, err = Get("platinum")
	assert.ErrorIs(t, err, zenith.ErrUnknownPlan)
	assert.EqualError(t, err, `unknown plan: "platinum" (available: free, pro, team)`)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"free", "pro", "team"}, IDs())
}

func TestNextRenewal(t *testing.T) {
	from := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC), NextRenewal(from))
}
