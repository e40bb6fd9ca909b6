package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogger_RecordOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	logs := &logRepositoryStub{}
	logger := NewActivityLogger(logs, sequence("log"), serviceNow, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	metadata := map[string]any{"eventId": "e1"}
	logger.Record(ctx, "alice", LogEventCreated, "Created event: Standup", metadata)
	metadata["eventId"] = "mutated"
	logger.Wait()

	entries := logs.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, LogEntry{
		ID:          "log-1",
		UserID:      "alice",
		Action:      LogEventCreated,
		Description: "Created event: Standup",
		Metadata:    map[string]any{"eventId": "e1"},
		Timestamp:   serviceNow(),
	}, entries[0])
}

func TestActivityLogger_SwallowsWriteFailures(t *testing.T) {
	t.Parallel()

	logs := &logRepositoryStub{err: errors.New("disk full")}
	logger := NewActivityLogger(logs, nil, nil, nil)

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), "alice", LogUserLogin, "login", nil)
		logger.Wait()
	})

	var nilLogger *ActivityLogger
	assert.NotPanics(t, func() {
		nilLogger.Record(context.Background(), "alice", LogUserLogin, "login", nil)
		nilLogger.Wait()
	})
}

func TestLogService_QueryLogs(t *testing.T) {
	t.Parallel()

	base := serviceNow()
	logs := &logRepositoryStub{}
	for i := 0; i < 60; i++ {
		_, err := logs.AppendLog(context.Background(), LogEntry{
			ID:        fmt.Sprintf("log-%02d", i),
			UserID:    "alice",
			Action:    LogEventCreated,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := logs.AppendLog(context.Background(), LogEntry{ID: "login", UserID: "ghost", Action: LogUserLogin, Timestamp: base})
	require.NoError(t, err)

	users := newUserRepositoryStub(User{ID: "alice", Name: "Alice", Email: "alice@example.com"})
	svc := NewLogService(logs, users)
	ctx := context.Background()

	t.Run("defaults limit and sorts newest first", func(t *testing.T) {
		entries, err := svc.QueryLogs(ctx, LogQueryParams{Principal: admin, Action: LogEventCreated})
		require.NoError(t, err)
		require.Len(t, entries, DefaultLogLimit)
		assert.Equal(t, "log-59", entries[0].ID)
		assert.Equal(t, "Alice", entries[0].UserName)
		assert.Equal(t, "alice@example.com", entries[0].UserEmail)
	})

	t.Run("caps the limit", func(t *testing.T) {
		_, err := svc.QueryLogs(ctx, LogQueryParams{Principal: admin, Limit: 10_000})
		require.NoError(t, err)
		assert.Equal(t, MaxLogLimit, logs.filters[len(logs.filters)-1].Limit)
	})

	t.Run("unknown users are left blank", func(t *testing.T) {
		entries, err := svc.QueryLogs(ctx, LogQueryParams{Principal: admin, Action: LogUserLogin})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0].UserName)
	})

	t.Run("rejects unknown actions and non admins", func(t *testing.T) {
		_, err := svc.QueryLogs(ctx, LogQueryParams{Principal: admin, Action: "party"})
		var vErr *ValidationError
		assert.True(t, errors.As(err, &vErr))

		_, err = svc.QueryLogs(ctx, LogQueryParams{Principal: alice})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
