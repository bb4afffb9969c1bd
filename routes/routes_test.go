package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"appdownloader/middleware"
	"appdownloader/services"
	"appdownloader/testutil"
	"appdownloader/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type apiClient struct {
	t  *testing.T
	db *gorm.DB
	h  http.Handler
}

func newAPI(t *testing.T) *apiClient {
	db := testutil.NewDB(t)
	store := testutil.NewStore(t)
	lockout := middleware.GetLoginLockout()
	lockout.Clear()
	t.Cleanup(lockout.Clear)
	return &apiClient{t: t, db: db, h: InitRouter(Options{MediaRoot: store.Root, MediaURL: "/media/"})}
}

func (c *apiClient) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func (c *apiClient) json(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token)
}

func (c *apiClient) upload(taskID uint, token, field, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(c.t, err)
		_, err = fw.Write(content)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/upload_screenshot/%d/", taskID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, token)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		IsStaff  bool   `json:"is_staff"`
	} `json:"user"`
}

type profile struct {
	ID   uint `json:"id"`
	User struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	TasksCompleted int64 `json:"tasksCompleted"`
	PointsEarned   int64 `json:"points_earned"`
}

type task struct {
	ID         uint    `json:"id"`
	App        uint    `json:"app"`
	Completed  bool    `json:"completed"`
	Screenshot *string `json:"screenshot"`
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// loginFrom posts credentials from the given client address.
func (c *apiClient) loginFrom(remote, username, password string) *httptest.ResponseRecorder {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, "/login/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remote
	return c.do(req, "")
}

func (c *apiClient) signup(name string) session {
	rec := c.json(http.MethodPost, "/signup/", "", map[string]string{"username": name, "password": "pw-" + name})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session](c.t, rec)
}

func TestSignupLoginAndProfile(t *testing.T) {
	api := newAPI(t)

	sess := api.signup("alice")
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, "alice", sess.User.Username)
	assert.False(t, sess.User.IsStaff)

	rec := api.json(http.MethodGet, "/get_user_profile/", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[profile](t, rec)
	assert.Equal(t, sess.User.ID, p.User.ID)
	assert.Equal(t, "alice", p.User.Username)
	assert.Zero(t, p.PointsEarned)
	assert.Zero(t, p.TasksCompleted)

	rec = api.json(http.MethodPost, "/signup/", "", map[string]string{"username": "alice", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Fields, "username")

	rec = api.json(http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
	require.Equal(t, http.StatusOK, rec.Code, "trailing slash is optional")
	assert.Equal(t, sess.Token, decode[session](t, rec).Token)

	wrong := api.json(http.MethodPost, "/login/", "", map[string]string{"username": "alice", "password": "nope"})
	unknown := api.json(http.MethodPost, "/login/", "", map[string]string{"username": "ghost-user", "password": "pw-alice"})
	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	rec = api.json(http.MethodPost, "/login/", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	api := newAPI(t)
	for _, path := range []string{"/get_user_profile/", "/get_android_apps/", "/get_user_tasks/", "/get_categories/"} {
		assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodGet, path, "", nil).Code, path)
		assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodGet, path, "bogus", nil).Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodPost, "/download_app/", "", map[string]int{"app_id": 1}).Code)
	assert.Equal(t, http.StatusUnauthorized, api.upload(1, "", "screenshot", "a.png", pngHeader).Code)
	assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodPost, "/add_android_app/", "", nil).Code)
}

func TestAddAndroidApp(t *testing.T) {
	api := newAPI(t)
	user := api.signup("bob")
	require.NoError(t, services.EnsureAdmin(t.Context(), api.db, "root", "toor"))
	rec := api.json(http.MethodPost, "/login/", "", map[string]string{"username": "root", "password": "toor"})
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode[session](t, rec)
	require.True(t, admin.User.IsStaff)

	valid := map[string]interface{}{"name": "Chatter", "points": 20, "category": "Social Media", "subcategory": "Messaging"}

	for _, body := range []interface{}{valid, map[string]interface{}{}, nil} {
		rec = api.json(http.MethodPost, "/add_android_app/", user.Token, body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "non-staff is rejected whatever the payload")
	}

	rec = api.json(http.MethodPost, "/add_android_app/", admin.Token, map[string]interface{}{"name": "Broken", "points": -1, "category": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Fields, "points")

	rec = api.json(http.MethodPost, "/add_android_app/", admin.Token, valid)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		ID          uint   `json:"id"`
		Name        string `json:"name"`
		Points      int64  `json:"points"`
		Category    uint   `json:"category"`
		SubCategory *uint  `json:"subcategory"`
	}](t, rec)
	assert.Equal(t, "Chatter", created.Name)
	assert.Equal(t, int64(20), created.Points)
	assert.NotZero(t, created.Category)
	assert.NotNil(t, created.SubCategory)

	rec = api.json(http.MethodGet, "/get_android_apps/", user.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	apps := decode[[]struct {
		ID uint `json:"id"`
	}](t, rec)
	require.Len(t, apps, 1)
	assert.Equal(t, created.ID, apps[0].ID)
}

// seedApp adds an app through the service layer and returns its id.
func (c *apiClient) seedApp(name string, points int64) uint {
	c.t.Helper()
	app, err := services.AddApp(c.t.Context(), c.db, services.AddAppInput{
		Name:     name,
		Points:   &points,
		Category: &utils.Ref{Name: "Productivity"},
	})
	require.NoError(c.t, err)
	return app.ID
}

func TestDownloadUploadAndTasks(t *testing.T) {
	api := newAPI(t)
	alice := api.signup("alice")
	mallory := api.signup("mallory")
	appID := api.seedApp("Notes", 30)

	rec := api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{"app_id": fmt.Sprint(appID)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dl := decode[struct {
		Message      string  `json:"message"`
		PointsEarned int64   `json:"points_earned"`
		TotalPoints  int64   `json:"total_points"`
		UserProfile  profile `json:"user_profile"`
	}](t, rec)
	assert.Equal(t, "Successfully downloaded Notes", dl.Message)
	assert.Equal(t, int64(30), dl.PointsEarned)
	assert.Equal(t, int64(30), dl.TotalPoints)
	assert.Equal(t, int64(30), dl.UserProfile.PointsEarned)

	rec = api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{"app_id": appID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusNotFound, api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{"app_id": 9999}).Code)
	assert.Equal(t, http.StatusBadRequest, api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{}).Code)
	assert.Equal(t, http.StatusBadRequest, api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{"app_id": "abc"}).Code)

	rec = api.json(http.MethodGet, "/get_user_tasks/", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct {
		UserProfile profile `json:"user_profile"`
		Tasks       []task  `json:"tasks"`
	}](t, rec)
	require.Len(t, listed.Tasks, 1)
	taskID := listed.Tasks[0].ID
	assert.Equal(t, appID, listed.Tasks[0].App)
	assert.False(t, listed.Tasks[0].Completed)
	assert.Nil(t, listed.Tasks[0].Screenshot)
	assert.Equal(t, int64(30), listed.UserProfile.PointsEarned)

	assert.Equal(t, http.StatusNotFound, api.upload(taskID, mallory.Token, "screenshot", "a.png", pngHeader).Code)
	assert.Equal(t, http.StatusBadRequest, api.upload(taskID, alice.Token, "", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.upload(taskID, alice.Token, "screenshot", "notes.txt", []byte("just some text")).Code)

	for i := 0; i < 2; i++ {
		rec = api.upload(taskID, alice.Token, "screenshot", "proof.png", pngHeader)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		up := decode[struct {
			Task        task    `json:"task"`
			UserProfile profile `json:"user_profile"`
		}](t, rec)
		assert.True(t, up.Task.Completed)
		require.NotNil(t, up.Task.Screenshot)
		assert.Contains(t, *up.Task.Screenshot, "/media/screenshots/")
		assert.Equal(t, int64(1), up.UserProfile.TasksCompleted, "completing twice counts once")
		assert.Equal(t, int64(30), up.UserProfile.PointsEarned)

		// the stored file is served back from the media prefix
		served := api.do(httptest.NewRequest(http.MethodGet, *up.Task.Screenshot, nil), "")
		assert.Equal(t, http.StatusOK, served.Code)
	}

	rec = api.json(http.MethodGet, "/get_user_tasks/", mallory.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(mustField(t, rec.Body.Bytes(), "tasks")))
}

func mustField(t *testing.T, body []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[name]
	require.True(t, ok, "missing %q in %s", name, body)
	return v
}

func TestCategories(t *testing.T) {
	api := newAPI(t)
	sess := api.signup("carol")
	rec := api.json(http.MethodGet, "/get_categories/", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]map[string]interface{}](t, rec)
	assert.Len(t, cats, 3)
}

func TestDocsHealthAndPreflight(t *testing.T) {
	api := newAPI(t)

	rec := api.do(httptest.NewRequest(http.MethodGet, "/swagger.json", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	for _, p := range OpenAPIDocument().SortedPaths() {
		assert.Contains(t, doc.Paths, p)
	}
	assert.Len(t, doc.Paths, len(Table()))
	assert.Contains(t, doc.Paths, "/upload_screenshot/{task_id}/")

	rec = api.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	req := httptest.NewRequest(http.MethodOptions, "/download_app/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = api.do(req, "")
	assert.Less(t, rec.Code, 300)

	rec = api.do(httptest.NewRequest(http.MethodGet, "/nope/", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	api := newAPI(t)
	rec := api.json(http.MethodPost, "/signup/", "", map[string]string{"username": "verbose", "password": strings.Repeat("p", 100)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Fields, "password")
}

func TestLoginLockoutIsPerClient(t *testing.T) {
	api := newAPI(t)
	api.signup("erin")
	const stranger, owner = "203.0.113.50:4000", "198.51.100.7:5000"

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusBadRequest, api.loginFrom(stranger, "erin", "guess").Code)
		assert.Equal(t, http.StatusBadRequest, api.loginFrom(owner, "ERIN", "guess").Code)
	}
	rec := api.loginFrom(stranger, "erin", "pw-erin")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "the guessing client is locked")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = api.loginFrom(owner, "erin", "pw-erin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[session](t, rec).Token)
}

func TestUploadChecksTaskBeforeFile(t *testing.T) {
	api := newAPI(t)
	alice := api.signup("alice")
	bob := api.signup("bob")
	appID := api.seedApp("Radio", 5)
	rec := api.json(http.MethodPost, "/download_app/", alice.Token, map[string]interface{}{"app_id": appID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.json(http.MethodGet, "/get_user_tasks/", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[struct {
		Tasks []task `json:"tasks"`
	}](t, rec).Tasks
	require.Len(t, tasks, 1)

	assert.Equal(t, http.StatusNotFound, api.upload(999, alice.Token, "", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.upload(tasks[0].ID, bob.Token, "", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.upload(tasks[0].ID, bob.Token, "screenshot", "a.txt", []byte("text")).Code)
	assert.Equal(t, http.StatusBadRequest, api.upload(tasks[0].ID, alice.Token, "", "", nil).Code)
}
