package notify

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PlatformDue - due-вычисление общего планировщика: ежедневный дайджест
// матчей и напоминание неактивным пользователям.
func PlatformDue(db *gorm.DB) DueFunc {
	return func(ctx context.Context, now time.Time) ([]*Notification, error) {
		digest, err := matchDigestDue(ctx, db, now)
		if err != nil {
			return nil, err
		}

		nudges, err := lowActivityDue(ctx, db, now)
		if err != nil {
			// Дайджест уже посчитан - отдаем его, а не срываем весь тик
			return digest, err
		}

		return append(digest, nudges...), nil
	}
}

// matchDigestDue - по одному дайджесту в сутки пользователям,
// у которых за последние 24 часа появились новые матчи
func matchDigestDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Notification, error) {
	type row struct {
		UserID     string
		MatchCount int
	}

	var rows []row
	err := db.WithContext(ctx).Raw(`
		SELECT user_id, COUNT(*) AS match_count
		FROM matches
		WHERE created_at >= ? AND created_at < ?
		GROUP BY user_id
	`, now.Add(-24*time.Hour), now).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("match digest query failed: %w", err)
	}

	day := now.UTC().Format("2006-01-02")
	notifications := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, &Notification{
			Kind:   KindMatch,
			UserID: r.UserID,
			Payload: map[string]any{
				"event":       "daily_digest",
				"match_count": r.MatchCount,
				"digest_date": day,
			},
			IdempotencyKey: fmt.Sprintf("daily_digest:%s:%s", r.UserID, day),
			CreatedAt:      now.UTC(),
		})
	}
	return notifications, nil
}

// lowActivityDue - раз в неделю пингуем тех, кто не заходил 7+ дней
func lowActivityDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Notification, error) {
	var userIDs []string
	err := db.WithContext(ctx).Raw(`
		SELECT id
		FROM users
		WHERE is_active = true
		AND last_active_at < ?
	`, now.Add(-7*24*time.Hour)).Scan(&userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("low activity query failed: %w", err)
	}

	// Ключ по ISO-неделе: один нудж на пользователя в неделю
	year, week := now.UTC().ISOWeek()
	notifications := make([]*Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		notifications = append(notifications, &Notification{
			Kind:   KindSystem,
			UserID: uid,
			Payload: map[string]any{
				"event": "low_activity_nudge",
			},
			IdempotencyKey: fmt.Sprintf("low_activity:%s:%d-W%02d", uid, year, week),
			CreatedAt:      now.UTC(),
		})
	}
	return notifications, nil
}
