// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package plans

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zenith-tasks/zenith"
)

const (
	PLAN_ID_FREE = "free"
	PLAN_ID_PRO  = "pro"
	PLAN_ID_TEAM = "team"
)

// Plan is a subscription tier
type Plan struct {
	ID             string
	Name           string
	MonthlyCredits int64
}

// Renews reports whether the plan grants credits every billing period
func (p Plan) Renews() bool {
	return p.MonthlyCredits > 0
}

var catalog = map[string]Plan{
	PLAN_ID_FREE: {ID: PLAN_ID_FREE, Name: "Free", MonthlyCredits: 0},
	PLAN_ID_PRO:  {ID: PLAN_ID_PRO, Name: "Pro", MonthlyCredits: 1000},
	PLAN_ID_TEAM: {ID: PLAN_ID_TEAM, Name: "Team", MonthlyCredits: 5000},
}

// Get looks up a plan by ID
func Get(planID string) (Plan, error) {
	plan, ok := catalog[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q (available: %s)", zenith.ErrUnknownPlan, planID, strings.Join(IDs(), ", "))
	}
	return plan, nil
}

// IDs returns the catalog's plan IDs in sorted order
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NextRenewal returns the renewal date one month after from
func NextRenewal(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}
