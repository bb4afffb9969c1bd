package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"appdownloader/models"
	"appdownloader/testutil"
	"appdownloader/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_CreatesUserProfileAndToken(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	sess, err := Signup(ctx, db, Credentials{Username: "  alice ", Password: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "alice", sess.User.Username)
	assert.False(t, sess.User.IsStaff)
	assert.NotEqual(t, "secret", sess.User.Password)

	var profiles, tokens int64
	require.NoError(t, db.Model(&models.UserProfile{}).Where("user_id = ?", sess.User.ID).Count(&profiles).Error)
	require.NoError(t, db.Model(&models.AuthToken{}).Where("user_id = ?", sess.User.ID).Count(&tokens).Error)
	assert.Equal(t, int64(1), profiles)
	assert.Equal(t, int64(1), tokens)

	user, err := Authenticate(ctx, db, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, user.ID)
}

func TestSignup_Validation(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	_, err := Signup(ctx, db, Credentials{Username: "taken", Password: "pw"})
	require.NoError(t, err)

	cases := map[string]Credentials{
		"missing username": {Password: "pw"},
		"missing password": {Username: "newbie"},
		"bad characters":   {Username: "no spaces", Password: "pw"},
		"taken":            {Username: "taken", Password: "other"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Signup(ctx, db, in)
			requireKind(t, err, utils.KindValidation)
		})
	}

	var appErr *utils.AppError
	_, err = Signup(ctx, db, Credentials{Username: "taken", Password: "x"})
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields, "username")
}

func TestLogin(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	signed, err := Signup(ctx, db, Credentials{Username: "bob", Password: "right"})
	require.NoError(t, err)

	sess, err := Login(ctx, db, Credentials{Username: "bob", Password: "right"})
	require.NoError(t, err)
	assert.Equal(t, signed.Token, sess.Token, "login returns the existing token")

	_, wrongErr := Login(ctx, db, Credentials{Username: "bob", Password: "wrong"})
	_, unknownErr := Login(ctx, db, Credentials{Username: "nobody", Password: "right"})
	requireKind(t, wrongErr, utils.KindInvalidCredentials)
	requireKind(t, unknownErr, utils.KindInvalidCredentials)
	assert.Equal(t, wrongErr.Error(), unknownErr.Error())

	_, err = Login(ctx, db, Credentials{Username: "bob"})
	requireKind(t, err, utils.KindValidation)
}

func TestLogin_RecreatesMissingToken(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	signed, err := Signup(ctx, db, Credentials{Username: "carl", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, db.Where("user_id = ?", signed.User.ID).Delete(&models.AuthToken{}).Error)

	_, err = Authenticate(ctx, db, signed.Token)
	requireKind(t, err, utils.KindUnauthorized)

	sess, err := Login(ctx, db, Credentials{Username: "carl", Password: "pw"})
	require.NoError(t, err)
	assert.NotEqual(t, signed.Token, sess.Token)
	_, err = Authenticate(ctx, db, sess.Token)
	require.NoError(t, err)
}

func TestAuthenticate_Rejects(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	_, err := Authenticate(ctx, db, "garbage")
	requireKind(t, err, utils.KindUnauthorized)

	// correctly signed but never stored
	key, err := utils.IssueTokenKey(1)
	require.NoError(t, err)
	_, err = Authenticate(ctx, db, key)
	requireKind(t, err, utils.KindUnauthorized)
}

func TestEnsureAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, EnsureAdmin(ctx, db, "root", "toor"))
	require.NoError(t, EnsureAdmin(ctx, db, "root", "changed"))

	var admin models.User
	require.NoError(t, db.Where("username = ?", "root").First(&admin).Error)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.CheckPassword("toor"), "existing password is kept")

	sess, err := Login(ctx, db, Credentials{Username: "root", Password: "toor"})
	require.NoError(t, err)
	user, err := Authenticate(ctx, db, sess.Token)
	require.NoError(t, err)
	assert.True(t, user.IsStaff)

	// promotion of an existing account
	_, err = Signup(ctx, db, Credentials{Username: "promoted", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, EnsureAdmin(ctx, db, "promoted", "ignored"))
	var promoted models.User
	require.NoError(t, db.Where("username = ?", "promoted").First(&promoted).Error)
	assert.True(t, promoted.IsStaff)

	assert.Error(t, EnsureAdmin(ctx, db, "", ""))
}

func TestSignup_PasswordLength(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	cases := map[string]string{
		"100 ascii chars":            strings.Repeat("a", 100),
		"40 runes but 80 bytes":      strings.Repeat("é", 40),
		"73 bytes just over the cap": strings.Repeat("b", 73),
	}
	for name, pw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Signup(ctx, db, Credentials{Username: "long", Password: pw})
			requireKind(t, err, utils.KindValidation)
			var appErr *utils.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Fields, "password")
		})
	}

	pw := strings.Repeat("c", 72)
	sess, err := Signup(ctx, db, Credentials{Username: "longest", Password: pw})
	require.NoError(t, err)
	login, err := Login(ctx, db, Credentials{Username: "longest", Password: pw})
	require.NoError(t, err)
	assert.Equal(t, sess.Token, login.Token)
}

func TestEnsureAdmin_PromotionClearsTokenCache(t *testing.T) {
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	prev := utils.RedisClient
	utils.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = utils.RedisClient.Close()
		utils.RedisClient = prev
	})
	ctx := context.Background()

	sess, err := Signup(ctx, db, Credentials{Username: "eve", Password: "pw"})
	require.NoError(t, err)
	user, err := Authenticate(ctx, db, sess.Token)
	require.NoError(t, err)
	require.False(t, user.IsStaff)

	ids, err := userTokenIDs(ctx, db, sess.User.ID)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.True(t, mr.Exists("auth:token:"+ids[0]), "lookup is cached")

	require.NoError(t, EnsureAdmin(ctx, db, "eve", "ignored"))
	assert.False(t, mr.Exists("auth:token:"+ids[0]))

	user, err = Authenticate(ctx, db, sess.Token)
	require.NoError(t, err)
	assert.True(t, user.IsStaff, "promotion applies to the next request")
}
