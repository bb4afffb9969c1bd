package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"appdownloader/models"
	"appdownloader/testutil"
	"appdownloader/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUser(t *testing.T, db *gorm.DB, name string) *Session {
	t.Helper()
	sess, err := Signup(context.Background(), db, Credentials{Username: name, Password: "pass-" + name})
	require.NoError(t, err)
	return sess
}

func newApp(t *testing.T, db *gorm.DB, name string, points int64) models.AndroidApp {
	t.Helper()
	var cat models.Category
	require.NoError(t, db.Where("name = ?", "Productivity").First(&cat).Error)
	app := models.AndroidApp{Name: name, Points: points, CategoryID: cat.ID}
	require.NoError(t, db.Create(&app).Error)
	return app
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, utils.KindOf(err), "error: %v", err)
}

func TestDownloadApp_AwardsPointsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	sess := newUser(t, db, "alice")
	app := newApp(t, db, "Notes Pro", 25)
	other := newApp(t, db, "Mail", 10)

	res, err := DownloadApp(ctx, db, sess.User.ID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Profile.PointsEarned)
	assert.Equal(t, int64(0), res.Profile.TasksCompleted)
	assert.False(t, res.Task.Completed)
	assert.Equal(t, app.ID, res.Task.AppID)
	require.NotNil(t, res.Profile.User)
	assert.Equal(t, "alice", res.Profile.User.Username)

	_, err = DownloadApp(ctx, db, sess.User.ID, app.ID)
	requireKind(t, err, utils.KindConflict)

	res, err = DownloadApp(ctx, db, sess.User.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(35), res.Profile.PointsEarned, "points grow by exactly app.points")

	var tasks int64
	require.NoError(t, db.Model(&models.Task{}).Where("user_id = ?", sess.User.ID).Count(&tasks).Error)
	assert.Equal(t, int64(2), tasks)
}

func TestDownloadApp_Errors(t *testing.T) {
	db := testutil.NewDB(t)
	sess := newUser(t, db, "bob")

	_, err := DownloadApp(context.Background(), db, sess.User.ID, 0)
	requireKind(t, err, utils.KindValidation)

	_, err = DownloadApp(context.Background(), db, sess.User.ID, 4242)
	requireKind(t, err, utils.KindNotFound)

	p, err := GetOrCreateProfile(context.Background(), db, sess.User.ID)
	require.NoError(t, err)
	assert.Zero(t, p.PointsEarned)
}

func TestDownloadApp_ConcurrentDuplicatesAwardOnce(t *testing.T) {
	db := testutil.NewDB(t)
	sess := newUser(t, db, "carol")
	app := newApp(t, db, "Race", 7)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = DownloadApp(context.Background(), db, sess.User.ID, app.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, utils.KindConflict, utils.KindOf(err), "error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	p, err := GetOrCreateProfile(context.Background(), db, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.PointsEarned)
}

func TestGetOrCreateProfile_LazyCreate(t *testing.T) {
	db := testutil.NewDB(t)
	user := models.User{Username: "legacy", Password: "x"}
	require.NoError(t, db.Create(&user).Error)

	p1, err := GetOrCreateProfile(context.Background(), db, user.ID)
	require.NoError(t, err)
	p2, err := GetOrCreateProfile(context.Background(), db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "legacy", p2.User.Username)

	var count int64
	require.NoError(t, db.Model(&models.UserProfile{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func shot(name, body string) Screenshot {
	return Screenshot{Body: strings.NewReader(body), Size: int64(len(body)), Filename: name, ContentType: "image/png"}
}

func TestUploadScreenshot_CompletesOnce(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore(t)
	ctx := context.Background()
	sess := newUser(t, db, "dave")
	app := newApp(t, db, "Camera", 3)
	dl, err := DownloadApp(ctx, db, sess.User.ID, app.ID)
	require.NoError(t, err)

	res, err := UploadScreenshot(ctx, db, store, sess.User.ID, dl.Task.ID, shot("proof.PNG", "first"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.True(t, res.Task.Completed)
	assert.Equal(t, int64(1), res.Profile.TasksCompleted)
	assert.Equal(t, int64(3), res.Profile.PointsEarned, "uploading does not award points")
	require.NotNil(t, res.Task.Screenshot)
	first := *res.Task.Screenshot
	assert.True(t, strings.HasPrefix(first, "screenshots/"))
	assert.True(t, strings.HasSuffix(first, ".png"))
	_, err = os.Stat(filepath.Join(store.Root, filepath.FromSlash(first)))
	require.NoError(t, err)

	res, err = UploadScreenshot(ctx, db, store, sess.User.ID, dl.Task.ID, shot("again.png", "second"))
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, int64(1), res.Profile.TasksCompleted, "re-upload leaves the counter alone")
	require.NotNil(t, res.Task.Screenshot)
	assert.NotEqual(t, first, *res.Task.Screenshot)

	_, err = os.Stat(filepath.Join(store.Root, filepath.FromSlash(first)))
	assert.True(t, os.IsNotExist(err), "replaced screenshot is removed")
}

func TestUploadScreenshot_OtherUsersTask(t *testing.T) {
	db := testutil.NewDB(t)
	store := testutil.NewStore(t)
	ctx := context.Background()
	owner := newUser(t, db, "erin")
	intruder := newUser(t, db, "frank")
	app := newApp(t, db, "Chat", 1)
	dl, err := DownloadApp(ctx, db, owner.User.ID, app.ID)
	require.NoError(t, err)

	_, err = UploadScreenshot(ctx, db, store, intruder.User.ID, dl.Task.ID, shot("x.png", "x"))
	requireKind(t, err, utils.KindNotFound)

	_, err = UploadScreenshot(ctx, db, store, owner.User.ID, dl.Task.ID+100, shot("x.png", "x"))
	requireKind(t, err, utils.KindNotFound)

	entries, _ := os.ReadDir(filepath.Join(store.Root, "screenshots"))
	assert.Empty(t, entries, "nothing stored for rejected uploads")
}

type brokenStore struct{}

func (brokenStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}
func (brokenStore) URL(context.Context, string) (string, error) { return "", nil }
func (brokenStore) Delete(context.Context, string) error        { return nil }

func TestUploadScreenshot_StoreFailureLeavesTaskPending(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	sess := newUser(t, db, "gina")
	app := newApp(t, db, "Maps", 2)
	dl, err := DownloadApp(ctx, db, sess.User.ID, app.ID)
	require.NoError(t, err)

	_, err = UploadScreenshot(ctx, db, brokenStore{}, sess.User.ID, dl.Task.ID, shot("x.png", "x"))
	requireKind(t, err, utils.KindInternal)

	var task models.Task
	require.NoError(t, db.First(&task, dl.Task.ID).Error)
	assert.False(t, task.Completed)
	assert.Nil(t, task.Screenshot)
}

func TestListTasks(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	sess := newUser(t, db, "hank")

	tasks, profile, err := ListTasks(ctx, db, sess.User.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks)
	require.NotNil(t, profile)

	a := newApp(t, db, "A", 1)
	b := newApp(t, db, "B", 2)
	_, err = DownloadApp(ctx, db, sess.User.ID, b.ID)
	require.NoError(t, err)
	_, err = DownloadApp(ctx, db, sess.User.ID, a.ID)
	require.NoError(t, err)

	tasks, profile, err = ListTasks(ctx, db, sess.User.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Less(t, tasks[0].ID, tasks[1].ID)
	assert.Equal(t, int64(3), profile.PointsEarned)
}

func TestFindUserTask(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := newUser(t, db, "ivy")
	other := newUser(t, db, "jack")
	app := newApp(t, db, "Weather", 4)
	dl, err := DownloadApp(ctx, db, owner.User.ID, app.ID)
	require.NoError(t, err)

	task, err := FindUserTask(ctx, db, owner.User.ID, dl.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, task.AppID)

	_, err = FindUserTask(ctx, db, other.User.ID, dl.Task.ID)
	requireKind(t, err, utils.KindNotFound)
	_, err = FindUserTask(ctx, db, owner.User.ID, dl.Task.ID+1)
	requireKind(t, err, utils.KindNotFound)
}
