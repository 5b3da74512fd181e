package notifier

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Notification сообщение студенту в очереди доставки
type Notification struct {
	RequesterID int64      `json:"requesterId"`
	Message     string     `json:"message"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (n Notification) Encode() ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return body, nil
}

func DecodeNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.RequesterID == 0 || n.Message == "" {
		return n, fmt.Errorf("decode notification: requesterId and message are required")
	}
	return n, nil
}

// Text текст для мессенджера, со сроком ответа, если он есть
func (n Notification) Text() string {
	if n.ExpiresAt == nil {
		return n.Message
	}
	return fmt.Sprintf("%s\nОтветьте до %s", n.Message, n.ExpiresAt.Format("02.01.2006 15:04"))
}
