package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportai.io/internal/audit"
)

func TestPublishReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	require.Equal(t, 2, s.Subscribers())

	require.NoError(t, s.Append(ctx, audit.Entry{Action: audit.ActionLogout, User: "a@club.com"}))
	for _, ch := range []<-chan audit.Entry{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, audit.ActionLogout, e.Action)
		case <-time.After(time.Second):
			t.Fatal("entry not delivered")
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, s.Subscribers())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize*4; i++ {
			s.Publish(audit.Entry{Action: audit.ActionLoginFailed})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestAuditLogMirrorsIntoStream(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	log := audit.NewLog(t.TempDir(), audit.WithMirror(s))
	require.NoError(t, log.Record(ctx, "admin@club.com", audit.ActionConfigUpdated, "facility.name = X"))

	select {
	case e := <-ch:
		assert.Equal(t, "facility.name = X", e.Details)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("audit entry not streamed")
	}
}
