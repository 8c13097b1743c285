package services_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu            sync.Mutex
	activities    []models.TaskActivity
	notifications []models.Notification
}

func (r *recordingSink) RecordActivities(ctx context.Context, activities []models.TaskActivity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, activities...)
}

func (r *recordingSink) Notify(ctx context.Context, notifications []models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, notifications...)
}

func (r *recordingSink) activityTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.activities))
	for _, a := range r.activities {
		types = append(types, a.Type)
	}
	return types
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = nil
	r.notifications = nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func patchOf(t *testing.T, body string) services.TaskPatch {
	t.Helper()
	var patch services.TaskPatch
	require.NoError(t, json.Unmarshal([]byte(body), &patch))
	return patch
}

func requireKind(t *testing.T, err error, kind services.ErrorKind) *services.Error {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, services.KindOf(err), "unexpected error: %v", err)
	svcErr, _ := err.(*services.Error)
	return svcErr
}
