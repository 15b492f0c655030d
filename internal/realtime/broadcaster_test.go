package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu     sync.Mutex
	pushes map[string][]Event
	fail   map[string]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		pushes: make(map[string][]Event),
		fail:   make(map[string]bool),
	}
}

func (p *fakePusher) Push(connID string, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[connID] {
		return fmt.Errorf("connection reset")
	}
	p.pushes[connID] = append(p.pushes[connID], ev)
	return nil
}

func (p *fakePusher) events(connID string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.pushes[connID]...)
}

func TestBroadcastReachesRoomMembers(t *testing.T) {
	registry := NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(registry, pusher)

	registry.Join("c1", CourseRoom("cs101"))
	registry.Join("c2", CourseRoom("cs101"))
	registry.Join("c3", CourseRoom("cs999"))

	b.AssignmentCreated("cs101", map[string]string{"assignment_id": "a1"})

	assert.Eventually(t, func() bool {
		return len(pusher.events("c1")) == 1 && len(pusher.events("c2")) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, pusher.events("c3"))

	ev := pusher.events("c1")[0]
	assert.Equal(t, EventAssignmentCreated, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestBroadcastDeduplicatesAcrossRooms(t *testing.T) {
	registry := NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(registry, pusher)

	// same connection in both target rooms
	registry.Join("c1", CourseRoom("cs101"))
	registry.Join("c1", UserRoom("alice"))

	b.EnrollmentChanged("cs101", "alice", map[string]string{"status": "enrolled"})

	assert.Eventually(t, func() bool {
		return len(pusher.events("c1")) == 1
	}, time.Second, 10*time.Millisecond)

	// give a duplicate push a chance to land before asserting it never does
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pusher.events("c1"), 1)
}

func TestGradeUpdatedStaysPrivate(t *testing.T) {
	registry := NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(registry, pusher)

	// the graded student, a classmate in the course room, and the instructor
	registry.Join("student", UserRoom("alice"))
	registry.Join("student", CourseRoom("cs101"))
	registry.Join("classmate", CourseRoom("cs101"))
	registry.Join("instructor", UserRoom("prof"))

	b.GradeUpdated("alice", map[string]string{"grade": "A"})

	assert.Eventually(t, func() bool {
		return len(pusher.events("student")) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, pusher.events("classmate"), "grades never reach the course room")
	assert.Empty(t, pusher.events("instructor"))
}

func TestNotificationCreatedRouting(t *testing.T) {
	registry := NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(registry, pusher)

	registry.Join("c1", NotificationsRoom("alice"))
	registry.Join("c2", NotificationsRoom("bob"))
	registry.Join("c3", NotificationsAllRoom)
	registry.Join("c4", NotificationsRoleRoom("student"))

	// fan-out notification goes to the recipients' personal rooms
	b.NotificationCreated(&models.Notification{ID: "n1", Target: "list:alice,bob"}, []string{"alice", "bob"})
	assert.Eventually(t, func() bool {
		return len(pusher.events("c1")) == 1 && len(pusher.events("c2")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, pusher.events("c3"))

	// global "all" goes to the shared room only
	b.NotificationCreated(&models.Notification{ID: "n2", Target: "all", IsGlobal: true}, nil)
	assert.Eventually(t, func() bool {
		return len(pusher.events("c3")) == 1
	}, time.Second, 10*time.Millisecond)

	// global role target goes to that role's room
	b.NotificationCreated(&models.Notification{ID: "n3", Target: "role:student", IsGlobal: true}, nil)
	assert.Eventually(t, func() bool {
		return len(pusher.events("c4")) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pusher.events("c1"), 1)
	assert.Len(t, pusher.events("c3"), 1)
}

func TestBroadcastEvictsFailedConnections(t *testing.T) {
	registry := NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(registry, pusher)

	registry.Join("good", ChatRoom("team7"))
	registry.Join("dead", ChatRoom("team7"))
	registry.Join("dead", UserRoom("bob"))
	pusher.fail["dead"] = true

	b.ChatMessage("team7", map[string]string{"text": "hi"})

	require.Eventually(t, func() bool {
		return len(registry.Rooms("dead")) == 0
	}, time.Second, 10*time.Millisecond, "failed connection is evicted from every room")

	assert.Eventually(t, func() bool {
		return len(pusher.events("good")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"good"}, registry.Members(ChatRoom("team7")))
}
