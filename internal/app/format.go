package app

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"offline_sync_agent/internal/domain/notification"
)

const maxChatBodyRunes = 200

// DisplayID derives a stable presenter id from the source record, so a record seen by
// several cycles always maps to the same id and distinct records do not share one.
func DisplayID(kind notification.Kind, sourceID string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(kind) + ":" + sourceID))
	return int32(h.Sum32() & 0x7fffffff)
}

// startPhrase describes a signed offset from now, diff = scheduledFor - now, both in UTC.
func startPhrase(diff time.Duration) string {
	if diff >= 0 {
		switch {
		case diff < time.Minute:
			return "starting now"
		case diff < time.Hour:
			return fmt.Sprintf("starting in %dm", int(diff/time.Minute))
		case diff < 24*time.Hour:
			return fmt.Sprintf("starting in %dh", int(diff/time.Hour))
		default:
			return fmt.Sprintf("starting in %dd", int(diff/(24*time.Hour)))
		}
	}
	return "started " + agoPhrase(-diff)
}

func sentPhrase(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	return "sent " + agoPhrase(elapsed)
}

func agoPhrase(elapsed time.Duration) string {
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed/(24*time.Hour)))
	}
}

// humanizeType turns "match_reminder" into "Match reminder".
func humanizeType(t string) string {
	t = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(t))
	if t == "" {
		return "Notification"
	}
	r := []rune(strings.ToLower(t))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func matchSuffix(matchNumber int, eventCode string) string {
	if matchNumber <= 0 || eventCode == "" {
		return ""
	}
	return fmt.Sprintf(" - Match %d (%s)", matchNumber, strings.ToUpper(eventCode))
}

func formatScheduled(n notification.Scheduled, now time.Time, loc *time.Location) (string, string) {
	title := n.Title
	if title == "" {
		title = humanizeType(n.NotificationType)
	}
	lead := n.Message
	if lead == "" {
		lead = humanizeType(n.NotificationType)
	}
	at := n.ScheduledFor.In(loc).Format("Mon 3:04 PM")
	phrase := startPhrase(n.ScheduledFor.UTC().Sub(now.UTC()))
	body := fmt.Sprintf("%s at %s (%s)%s", lead, at, phrase, matchSuffix(n.MatchNumber, n.EventCode))
	return title, body
}

func formatPast(n notification.Past, now time.Time) (string, string) {
	title := n.Title
	if title == "" {
		title = humanizeType(n.NotificationType)
	}
	body := n.Message
	if body == "" {
		body = fmt.Sprintf("%s %s", humanizeType(n.NotificationType), sentPhrase(now.UTC().Sub(n.SentAt.UTC())))
	}
	return title, body + matchSuffix(n.MatchNumber, n.EventCode)
}

func formatChat(m notification.ChatMessage, source *notification.ChatSource) (string, string) {
	sender := m.SenderName
	if sender == "" {
		sender = "New message"
	}
	title := sender
	if source != nil && source.Type == notification.ChatSourceGroup && source.Name != "" {
		title = fmt.Sprintf("%s in %s", sender, source.Name)
	}
	body := strings.TrimSpace(m.Text)
	if r := []rune(body); len(r) > maxChatBodyRunes {
		body = string(r[:maxChatBodyRunes-1]) + "…"
	}
	if body == "" {
		body = "Sent an attachment"
	}
	return title, body
}
