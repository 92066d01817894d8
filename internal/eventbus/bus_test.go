package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	Publish(b, PostDelivered, 42)

	ea := <-a
	ec := <-c
	assert.Equal(t, PostDelivered, ea.Type)
	assert.Equal(t, 42, ec.Data)
	assert.False(t, ea.Time.IsZero())
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	Publish(b, PostEmpty, 1)
	Publish(b, PostEmpty, 2)

	e := <-ch
	require.Equal(t, 1, e.Data)
	assert.Equal(t, uint64(1), b.Dropped())
	unsub()
	unsub()
	_, ok := <-ch
	require.False(t, ok)

	// Nil bus is a no-op.
	Publish(nil, PostEmpty, 3)
}

func TestSubscribeFilters(t *testing.T) {
	t.Parallel()
	b := New()
	posts, unsubPosts := b.Subscribe(4, "post")
	failed, unsubFailed := b.Subscribe(4, string(TaskFailed))
	defer unsubPosts()
	defer unsubFailed()

	Publish(b, TaskStarted, nil)
	Publish(b, TaskFailed, "x")
	Publish(b, PostEmpty, 7)

	e := <-posts
	assert.Equal(t, PostEmpty, e.Type)
	e = <-failed
	assert.Equal(t, TaskFailed, e.Type)
	assert.Empty(t, posts)
	assert.Empty(t, failed)
	assert.Zero(t, b.Dropped())
}

func TestTopicFamily(t *testing.T) {
	assert.Equal(t, "task", TaskDropped.Family())
	assert.Equal(t, "job", JobCancelled.Family())
	assert.Equal(t, "plain", Topic("plain").Family())
}
