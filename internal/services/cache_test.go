package services_test

import (
	"context"
	"testing"
	"time"

	"taskboard/internal/cache"
	"taskboard/internal/models"
	"taskboard/internal/services"
	"taskboard/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskService_CachedDetail(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)

	cfg := cache.DefaultCacheConfig()
	cfg.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { redisCache.Close() })
	guarded := cache.NewGuardedCache(redisCache, nil, quietLogger())

	var _ services.Cache = guarded
	tasks := services.NewTaskService(db, &recordingSink{}, quietLogger(), services.WithCache(guarded, time.Minute))

	owner := testutil.CreateUser(t, db, "owner", models.RoleMember)
	reader := testutil.CreateUser(t, db, "reader", models.RoleMember)
	project := testutil.CreateProject(t, db, "Cached", owner)
	testutil.AddMember(t, db, project, owner, models.ProjectRoleOwner)
	testutil.AddMember(t, db, project, reader, models.ProjectRoleMember)
	task := testutil.CreateTask(t, db, project, "Original")

	detail, err := tasks.Get(ctx, owner, task.ID, "")
	require.NoError(t, err)
	assert.True(t, detail.Permissions.CanDelete)
	assert.True(t, mr.Exists(cfg.KeyPrefix+"task:"+task.ID.String()))

	// permissions are resolved per caller even when served from cache
	detail, err = tasks.Get(ctx, reader, task.ID, "")
	require.NoError(t, err)
	assert.False(t, detail.Permissions.CanDelete)
	assert.Equal(t, int64(1), guarded.Metrics().Hits)

	_, err = tasks.Update(ctx, owner, task.ID, patchOf(t, `{"title":"Renamed"}`))
	require.NoError(t, err)

	detail, err = tasks.Get(ctx, reader, task.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", detail.Title)

	// an unreachable cache falls back to the database
	mr.Close()
	detail, err = tasks.Get(ctx, reader, task.ID, services.ViewLight)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", detail.Title)
}

func TestTaskService_CachedDetailSeesLateActivity(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)

	cfg := cache.DefaultCacheConfig()
	cfg.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { redisCache.Close() })
	guarded := cache.NewGuardedCache(redisCache, nil, quietLogger())
	tasks := services.NewTaskService(db, &recordingSink{}, quietLogger(), services.WithCache(guarded, time.Minute))

	owner := testutil.CreateUser(t, db, "owner", models.RoleMember)
	project := testutil.CreateProject(t, db, "Cached", owner)
	testutil.AddMember(t, db, project, owner, models.ProjectRoleOwner)
	task := testutil.CreateTask(t, db, project, "Original")

	detail, err := tasks.Get(ctx, owner, task.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), detail.Counts.Activities)

	// an outbox delivered activity arrives after the snapshot was cached
	require.NoError(t, db.Create(&models.TaskActivity{TaskID: task.ID, ActorID: owner.ID, Type: "updated"}).Error)

	detail, err = tasks.Get(ctx, owner, task.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), guarded.Metrics().Hits)
	assert.Equal(t, int64(1), detail.Counts.Activities)
}
