package notify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SubscriptionDue - due-вычисление subscription-джоб: окончание триала,
// неудачное продление, истечение плана. Та же машинерия планировщика,
// другой расчет и другие ключи идемпотентности.
func SubscriptionDue(db *gorm.DB) DueFunc {
	return func(ctx context.Context, now time.Time) ([]*Notification, error) {
		var out []*Notification

		trial, err := trialEndingDue(ctx, db, now)
		if err != nil {
			return nil, err
		}
		out = append(out, trial...)

		failed, err := renewalFailedDue(ctx, db, now)
		if err != nil {
			return out, err
		}
		out = append(out, failed...)

		expiring, err := planExpiringDue(ctx, db, now)
		if err != nil {
			return out, err
		}
		return append(out, expiring...), nil
	}
}

type subscriptionRow struct {
	ID       string
	UserID   string
	PlanName string
	EndDate  time.Time
}

// trialEndingDue - триал заканчивается в ближайшие 3 дня
func trialEndingDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Notification, error) {
	var rows []subscriptionRow
	err := db.WithContext(ctx).Raw(`
		SELECT us.id, us.user_id, sp.name AS plan_name, us.end_date
		FROM user_subscriptions us
		JOIN subscription_plans sp ON sp.id = us.plan_id
		WHERE us.status = 'trialing'
		AND us.end_date > ?
		AND us.end_date <= ?
	`, now, now.Add(72*time.Hour)).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("trial ending query failed: %w", err)
	}

	notifications := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		daysRemaining := int(time.Until(r.EndDate).Hours()/24) + 1
		notifications = append(notifications, &Notification{
			Kind:   KindSubscriptionEvent,
			UserID: r.UserID,
			Payload: map[string]any{
				"event":          "trial_ending",
				"plan_name":      r.PlanName,
				"days_remaining": daysRemaining,
			},
			// Один раз на подписку: триал заканчивается однократно
			IdempotencyKey: fmt.Sprintf("trial_ending:%s:%s", r.UserID, r.ID),
			CreatedAt:      now.UTC(),
		})
	}
	return notifications, nil
}

// renewalFailedDue - продление не прошло, подписка в past_due
func renewalFailedDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Notification, error) {
	var rows []subscriptionRow
	err := db.WithContext(ctx).Raw(`
		SELECT us.id, us.user_id, sp.name AS plan_name, us.end_date
		FROM user_subscriptions us
		JOIN subscription_plans sp ON sp.id = us.plan_id
		WHERE us.status = 'past_due'
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("renewal failed query failed: %w", err)
	}

	notifications := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, &Notification{
			Kind:   KindSubscriptionEvent,
			UserID: r.UserID,
			Payload: map[string]any{
				"event":     "renewal_failed",
				"plan_name": r.PlanName,
			},
			// Ключ включает конец периода: следующий неудачный период - новое уведомление
			IdempotencyKey: fmt.Sprintf("renewal_failed:%s:%s:%s", r.UserID, r.ID, r.EndDate.UTC().Format("2006-01-02")),
			CreatedAt:      now.UTC(),
		})
	}
	return notifications, nil
}

// planExpiringDue - активный план без автопродления истекает в течение суток
func planExpiringDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Notification, error) {
	var rows []subscriptionRow
	err := db.WithContext(ctx).Raw(`
		SELECT us.id, us.user_id, sp.name AS plan_name, us.end_date
		FROM user_subscriptions us
		JOIN subscription_plans sp ON sp.id = us.plan_id
		WHERE us.status = 'active'
		AND us.auto_renew = false
		AND us.end_date > ?
		AND us.end_date <= ?
	`, now, now.Add(24*time.Hour)).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("plan expiring query failed: %w", err)
	}

	notifications := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, &Notification{
			Kind:   KindSubscriptionEvent,
			UserID: r.UserID,
			Payload: map[string]any{
				"event":      "plan_expiring",
				"plan_name":  r.PlanName,
				"expires_at": r.EndDate.UTC(),
			},
			IdempotencyKey: fmt.Sprintf("plan_expiring:%s:%s", r.UserID, r.ID),
			CreatedAt:      now.UTC(),
		})
	}
	return notifications, nil
}
