package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKind = errors.New("unknown notification kind")

// Kind is the closed set of notification variants.
type Kind uint8

const (
	KindInfo Kind = iota
	KindReminder
	KindSuccess
	KindWarning
	KindError
)

var kindNames = [...]string{
	KindInfo:     "info",
	KindReminder: "reminder",
	KindSuccess:  "success",
	KindWarning:  "warning",
	KindError:    "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind accepts the lower-case wire name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return KindInfo, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SendsEmail reports whether a notification of this kind has an email leg.
func (k Kind) SendsEmail() bool {
	return k == KindReminder
}

func (k Kind) Icon() string {
	switch k {
	case KindReminder:
		return "🔔"
	case KindSuccess:
		return "✅"
	case KindWarning:
		return "⚠️"
	case KindError:
		return "❌"
	default:
		return "💡"
	}
}

// Subject builds the email subject line for a task-related notification.
func (k Kind) Subject(taskTitle string) string {
	switch k {
	case KindReminder:
		return fmt.Sprintf("%s Task Reminder: %s", k.Icon(), taskTitle)
	case KindSuccess:
		return fmt.Sprintf("%s Task Update: %s", k.Icon(), taskTitle)
	case KindWarning:
		return fmt.Sprintf("%s Task Alert: %s", k.Icon(), taskTitle)
	case KindError:
		return fmt.Sprintf("%s Task Issue: %s", k.Icon(), taskTitle)
	default:
		return fmt.Sprintf("📝 Task Notification: %s", taskTitle)
	}
}
