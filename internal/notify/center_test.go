package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fjod/chibi-storefront/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAdd_ExpiresAfterTTL(t *testing.T) {
	c := NewCenter(time.Minute, nil)
	defer c.Close()

	id := c.Add("Producto agregado al carrito", domain.SeveritySuccess, 20*time.Millisecond)
	require.Len(t, c.List(), 1)
	assert.Equal(t, id, c.List()[0].ID)

	assert.Eventually(t, func() bool { return len(c.List()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestAdd_DefaultTTL(t *testing.T) {
	c := NewCenter(15*time.Millisecond, nil)
	defer c.Close()

	c.Success("ok")
	n := c.List()
	require.Len(t, n, 1)
	assert.Equal(t, 15*time.Millisecond, n[0].TTL)
	assert.Equal(t, domain.SeveritySuccess, n[0].Severity)

	assert.Eventually(t, func() bool { return len(c.List()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestRemove_ManualDismissal(t *testing.T) {
	c := NewCenter(time.Minute, nil)
	defer c.Close()

	first := c.Error("first")
	second := c.Error("second")
	third := c.Error("second")

	c.Remove(second)
	c.Remove("unknown")

	ids := []string{}
	for _, n := range c.List() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{first, third}, ids, "insertion order kept, duplicates not merged")
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	c := NewCenter(time.Minute, nil)
	defer c.Close()

	events, unsubscribe := c.Subscribe(4)
	defer unsubscribe()

	id := c.Add("hola", domain.SeverityInfo, 0)
	c.Remove(id)

	ev := <-events
	assert.Equal(t, EventAdded, ev.Kind)
	assert.Equal(t, "hola", ev.Notification.Message)
	ev = <-events
	assert.Equal(t, EventRemoved, ev.Kind)
	assert.Equal(t, id, ev.Notification.ID)
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	c := NewCenter(time.Minute, nil)
	defer c.Close()

	_, unsubscribe := c.Subscribe(0)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		c.Info("never read")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Add blocked on a slow subscriber")
	}
}

func TestClose_StopsTimersAndSubscriptions(t *testing.T) {
	c := NewCenter(time.Minute, nil)

	events, unsubscribe := c.Subscribe(1)
	c.Add("pending", domain.SeverityWarning, time.Hour)
	<-events

	c.Close()
	c.Close()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)

	// adding after close is a no-op
	c.Add("late", domain.SeverityInfo, 0)
	assert.Len(t, c.List(), 1)
}
