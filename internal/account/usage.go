package account

import (
	"context"
	"errors"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"
)

func (m *Manager) ceiling(plan model.Plan) int {
	if c, ok := m.ceilings[plan]; ok && c > 0 {
		return c
	}

	return m.ceilings[model.PlanFree]
}

// CheckAndIncrementUsage charges cost against today's counter for the
// user's plan and returns the new count. The increment and the ceiling
// check happen in one store write, so concurrent calls can't overrun the
// quota between a read and a write.
func (m *Manager) CheckAndIncrementUsage(ctx context.Context, userID string, cost int) (int, error) {
	if cost <= 0 {
		cost = 1
	}

	u, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUnauthorized
		}

		return 0, mapStoreErr(err)
	}

	ceiling := m.ceiling(u.Plan)
	if cost > ceiling {
		return 0, ErrQuotaExceeded
	}

	count, err := m.store.IncrementUsage(ctx, userID, model.UsageDate(time.Now()), cost, ceiling)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return 0, ErrQuotaExceeded
		}

		return 0, mapStoreErr(err)
	}

	return count, nil
}

// Usage reports today's counter and the plan ceiling without charging
func (m *Manager) Usage(ctx context.Context, userID string) (count, ceiling int, err error) {
	u, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, 0, ErrUnauthorized
		}

		return 0, 0, mapStoreErr(err)
	}

	count, err = m.store.GetUsage(ctx, userID, model.UsageDate(time.Now()))
	if err != nil {
		return 0, 0, mapStoreErr(err)
	}

	return count, m.ceiling(u.Plan), nil
}
