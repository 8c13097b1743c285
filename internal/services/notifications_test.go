package services_test

import (
	"context"
	"testing"

	"taskboard/internal/events"
	"taskboard/internal/models"
	"taskboard/internal/services"
	"taskboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	service := services.NewNotificationService(db)

	alice := testutil.CreateUser(t, db, "alice", models.RoleMember)
	bob := testutil.CreateUser(t, db, "bob", models.RoleMember)

	require.NoError(t, events.InsertNotifications(ctx, db, []models.Notification{
		{UserID: alice.ID, Type: models.NotificationTaskAssigned, Title: "one"},
		{UserID: alice.ID, Type: models.NotificationTaskAssigned, Title: "two"},
		{UserID: bob.ID, Type: models.NotificationTaskAssigned, Title: "bob's"},
	}))

	page, err := service.List(ctx, alice, false, 0)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, int64(2), page.Unread)

	marked, err := service.MarkRead(ctx, alice, []string{page.Notifications[0].ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	page, err = service.List(ctx, alice, true, 0)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 1)
	assert.Equal(t, int64(1), page.Unread)

	// bob's notification is untouched by alice marking everything
	marked, err = service.MarkRead(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	page, err = service.List(ctx, bob, true, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Unread)

	_, err = service.MarkRead(ctx, alice, []string{"bogus"})
	requireKind(t, err, services.KindValidation)
}
