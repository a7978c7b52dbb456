package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"matchly_backend/pkg/apperrors"
)

// Kind - закрытый набор типов уведомлений платформы
type Kind string

const (
	KindMatch              Kind = "match"
	KindMessage            Kind = "message"
	KindVerificationStatus Kind = "verification_status"
	KindSubscriptionEvent  Kind = "subscription_event"
	KindSystem             Kind = "system"
)

var validate = validator.New()

// Notification - неизменяемое уведомление для одного получателя.
// IdempotencyKey детерминирован: kind + получатель + событие/цикл.
type Notification struct {
	Kind           Kind           `json:"kind" validate:"required,oneof=match message verification_status subscription_event system"`
	UserID         string         `json:"user_id" validate:"required"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key" validate:"required"`
	CreatedAt      time.Time      `json:"created_at"`
}

// WireMessage - формат сообщения на сокете.
// Эволюция только аддитивная: новые опциональные поля, без переименований.
type WireMessage struct {
	Kind           string         `json:"kind"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Validate проверяет, что уведомление корректно сформировано.
// Неизвестный kind или пустой адресат - ошибка программиста, не ставится в очередь.
func (n *Notification) Validate() error {
	if err := validate.Struct(n); err != nil {
		return apperrors.InvalidNotificationError(err.Error())
	}
	return nil
}

// Marshal сериализует уведомление в wire-формат
func (n *Notification) Marshal() ([]byte, error) {
	return json.Marshal(WireMessage{
		Kind:           string(n.Kind),
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
		IdempotencyKey: n.IdempotencyKey,
	})
}

// ---------------- Фабрики для событийных уведомлений ----------------
// Вызываются из обработчиков маршрутов (новый матч, новое сообщение и т.д.)

// NewMatchNotification - "у вас новый матч"
func NewMatchNotification(userID, matchID string) *Notification {
	return &Notification{
		Kind:   KindMatch,
		UserID: userID,
		Payload: map[string]any{
			"match_id": matchID,
		},
		IdempotencyKey: fmt.Sprintf("match:%s:%s", userID, matchID),
		CreatedAt:      time.Now().UTC(),
	}
}

// NewMessageNotification - "вам пришло сообщение"
func NewMessageNotification(userID, dialogID, messageID, senderName string) *Notification {
	return &Notification{
		Kind:   KindMessage,
		UserID: userID,
		Payload: map[string]any{
			"dialog_id":   dialogID,
			"message_id":  messageID,
			"sender_name": senderName,
		},
		IdempotencyKey: fmt.Sprintf("message:%s:%s", userID, messageID),
		CreatedAt:      time.Now().UTC(),
	}
}

// NewVerificationNotification - результат проверки профиля
func NewVerificationNotification(userID, verificationID, status string) *Notification {
	return &Notification{
		Kind:   KindVerificationStatus,
		UserID: userID,
		Payload: map[string]any{
			"verification_id": verificationID,
			"status":          status,
		},
		IdempotencyKey: fmt.Sprintf("verification:%s:%s:%s", userID, verificationID, status),
		CreatedAt:      time.Now().UTC(),
	}
}

// NewSystemNotification - служебное уведомление платформы
func NewSystemNotification(userID, eventID string, payload map[string]any) *Notification {
	return &Notification{
		Kind:           KindSystem,
		UserID:         userID,
		Payload:        payload,
		IdempotencyKey: fmt.Sprintf("system:%s:%s", userID, eventID),
		CreatedAt:      time.Now().UTC(),
	}
}
