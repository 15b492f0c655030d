package realtime

import (
	"strings"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/sirupsen/logrus"
)

// Pusher forwards one event to one connection over whatever wire protocol the
// transport adapter speaks. Push must not block indefinitely; an error means
// the connection is dead.
type Pusher interface {
	Push(connID string, ev Event) error
}

// Broadcaster maps domain events to rooms and pushes them to every registered
// connection. Pushes are fire-and-forget: one goroutine per connection, no
// acknowledgement, failures evict the connection from the registry and never
// propagate to the caller.
type Broadcaster struct {
	registry *Registry
	pusher   Pusher
}

func NewBroadcaster(registry *Registry, pusher Pusher) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		pusher:   pusher,
	}
}

// Broadcast pushes the event to every current member of the given rooms. A
// connection in several of the rooms receives the event once.
func (b *Broadcaster) Broadcast(eventType EventType, payload interface{}, rooms []string) {
	ev := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	seen := make(map[string]struct{})
	for _, room := range rooms {
		for _, connID := range b.registry.Members(room) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}

			go func(connID string) {
				if err := b.pusher.Push(connID, ev); err != nil {
					logrus.WithError(err).WithFields(logrus.Fields{
						"connectionID": connID,
						"event":        eventType,
					}).Warn("Push failed, evicting connection")
					b.registry.LeaveAll(connID)
				}
			}(connID)
		}
	}
}

// NotificationCreated emits the new-notification event: one notifications
// room per recipient for fan-out notifications, a single shared room for
// global ones.
func (b *Broadcaster) NotificationCreated(n *models.Notification, recipients []string) {
	var rooms []string
	if n.IsGlobal {
		rooms = []string{globalNotificationsRoom(n.Target)}
	} else {
		rooms = make([]string, 0, len(recipients))
		for _, userID := range recipients {
			rooms = append(rooms, NotificationsRoom(userID))
		}
	}
	b.Broadcast(EventNotificationCreated, n, rooms)
}

func globalNotificationsRoom(target string) string {
	if role, ok := strings.CutPrefix(target, "role:"); ok && role != "*" {
		return NotificationsRoleRoom(role)
	}
	return NotificationsAllRoom
}

// AssignmentCreated notifies everyone watching the course.
func (b *Broadcaster) AssignmentCreated(courseID string, payload interface{}) {
	b.Broadcast(EventAssignmentCreated, payload, []string{CourseRoom(courseID)})
}

// AssignmentUpdated notifies everyone watching the course.
func (b *Broadcaster) AssignmentUpdated(courseID string, payload interface{}) {
	b.Broadcast(EventAssignmentUpdated, payload, []string{CourseRoom(courseID)})
}

// GradeUpdated goes only to the graded student's own room; grades are not
// course-visible.
func (b *Broadcaster) GradeUpdated(studentID string, payload interface{}) {
	b.Broadcast(EventGradeUpdated, payload, []string{UserRoom(studentID)})
}

// ChatMessage goes to the chat room.
func (b *Broadcaster) ChatMessage(chatID string, payload interface{}) {
	b.Broadcast(EventChatMessage, payload, []string{ChatRoom(chatID)})
}

// EnrollmentChanged notifies both the course audience and the student.
func (b *Broadcaster) EnrollmentChanged(courseID, studentID string, payload interface{}) {
	b.Broadcast(EventEnrollmentChanged, payload, []string{CourseRoom(courseID), UserRoom(studentID)})
}
