package realtime

import (
	"strings"
	"time"
)

// EventType names the domain events pushed to connected clients.
type EventType string

const (
	EventNotificationCreated EventType = "notification_created"
	EventAssignmentCreated   EventType = "assignment_created"
	EventAssignmentUpdated   EventType = "assignment_updated"
	EventGradeUpdated        EventType = "grade_updated"
	EventChatMessage         EventType = "chat_message"
	EventEnrollmentChanged   EventType = "enrollment_changed"
)

// Event is the envelope delivered to every connection in the target rooms.
type Event struct {
	Type      EventType   `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Room key builders. A room is just a string key; the registry does not
// interpret it beyond the user-room uniqueness rule.
func UserRoom(userID string) string            { return "user:" + userID }
func CourseRoom(courseID string) string        { return "course:" + courseID }
func ChatRoom(chatID string) string            { return "chat:" + chatID }
func NotificationsRoom(userID string) string   { return "notifications:" + userID }
func NotificationsRoleRoom(role string) string { return "notifications:role:" + role }

// NotificationsAllRoom receives global notifications addressed to everyone.
const NotificationsAllRoom = "notifications:all"

// IsUserRoom reports whether the key is a personal identity room. A
// connection may hold at most one of these.
func IsUserRoom(room string) bool {
	return strings.HasPrefix(room, "user:")
}

// JoinableByClient reports whether clients may subscribe to the room
// themselves. Identity and notification rooms are joined by the server on
// connect; course and chat rooms are opt-in.
func JoinableByClient(room string) bool {
	return strings.HasPrefix(room, "course:") || strings.HasPrefix(room, "chat:")
}
