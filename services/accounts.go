package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"appdownloader/database"
	"appdownloader/models"
	"appdownloader/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const msgUsernameTaken = "A user with that username already exists."

// bcrypt rejects longer passwords.
const maxPasswordBytes = 72

type Credentials struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Password string `json:"password" validate:"required,max=72"`
}

func passwordTooLong() *utils.AppError {
	return utils.NewValidationError("Validation failed", map[string]string{
		"password": fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordBytes),
	})
}

// Session is what signup and login hand back to the client.
type Session struct {
	Token string
	User  models.User
}

// Signup creates the user, an empty profile and a token in one transaction.
func Signup(ctx context.Context, db *gorm.DB, in Credentials) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	// the tag counts runes, bcrypt counts bytes
	if len(in.Password) > maxPasswordBytes {
		return nil, passwordTooLong()
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return nil, utils.Internal(fmt.Errorf("check username: %w", err))
	}
	if count > 0 {
		return nil, utils.NewValidationError("Validation failed", map[string]string{"username": msgUsernameTaken})
	}

	user := models.User{Username: in.Username}
	if err := user.SetPassword(in.Password); err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, passwordTooLong()
		}
		return nil, utils.Internal(err)
	}

	var token string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.UserProfile{UserID: user.ID}).Error; err != nil {
			return err
		}
		var err error
		token, err = createToken(tx, user.ID)
		return err
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, utils.NewValidationError("Validation failed", map[string]string{"username": msgUsernameTaken})
		}
		return nil, utils.Internal(fmt.Errorf("signup: %w", err))
	}
	utils.Log.WithField("user_id", user.ID).Info("user signed up")
	return &Session{Token: token, User: user}, nil
}

var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

// compareDummy spends the same bcrypt work as a real check so unknown usernames are not
// distinguishable by latency.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Login returns the user's existing token, creating one if it is missing. Unknown usernames and
// wrong passwords fail with the same utils.ErrInvalidCredentials.
func Login(ctx context.Context, db *gorm.DB, in Credentials) (*Session, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = "This field is required."
	}
	if in.Password == "" {
		fields["password"] = "This field is required."
	}
	if len(fields) > 0 {
		return nil, utils.NewValidationError("Validation failed", fields)
	}

	var user models.User
	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(in.Username)).First(&user).Error; err != nil {
		if database.IsNotFound(err) {
			compareDummy(in.Password)
			return nil, utils.ErrInvalidCredentials
		}
		return nil, utils.Internal(fmt.Errorf("load user: %w", err))
	}
	if !user.CheckPassword(in.Password) {
		return nil, utils.ErrInvalidCredentials
	}

	token, err := getOrCreateToken(db.WithContext(ctx), user.ID)
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("token: %w", err))
	}
	return &Session{Token: token, User: user}, nil
}

func createToken(tx *gorm.DB, userID uint) (string, error) {
	key, err := utils.IssueTokenKey(userID)
	if err != nil {
		return "", err
	}
	if err := tx.Create(&models.AuthToken{Key: key, UserID: userID}).Error; err != nil {
		return "", err
	}
	return key, nil
}

func getOrCreateToken(db *gorm.DB, userID uint) (string, error) {
	var tok models.AuthToken
	err := db.Where("user_id = ?", userID).First(&tok).Error
	if err == nil {
		return tok.Key, nil
	}
	if !database.IsNotFound(err) {
		return "", err
	}
	key, err := createToken(db, userID)
	if err == nil {
		return key, nil
	}
	if !database.IsDuplicateKey(err) {
		return "", err
	}
	// a concurrent login created it first
	if err := db.Where("user_id = ?", userID).First(&tok).Error; err != nil {
		return "", err
	}
	return tok.Key, nil
}

// Authenticate resolves a token key to its user. Any failure is Unauthorized.
func Authenticate(ctx context.Context, db *gorm.DB, key string) (*models.User, error) {
	claims, err := utils.ParseTokenKey(key)
	if err != nil {
		return nil, utils.NewUnauthorized("Invalid token.")
	}
	if uid, staff, ok := utils.CachedTokenUser(ctx, claims.ID); ok && uid == claims.UserID {
		return &models.User{ID: uid, IsStaff: staff}, nil
	}

	var tok models.AuthToken
	err = db.WithContext(ctx).Preload("User").Where(&models.AuthToken{Key: key}).First(&tok).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, utils.NewUnauthorized("Invalid token.")
		}
		return nil, utils.Internal(fmt.Errorf("load token: %w", err))
	}
	if tok.User == nil || tok.UserID != claims.UserID {
		return nil, utils.NewUnauthorized("Invalid token.")
	}
	utils.CacheTokenUser(ctx, claims.ID, tok.User.ID, tok.User.IsStaff)
	return tok.User, nil
}

// EnsureAdmin makes sure a staff account named username exists. An existing account is promoted
// to staff; its password is left unchanged.
func EnsureAdmin(ctx context.Context, db *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		return errors.New("admin username and password are required")
	}
	var user models.User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	switch {
	case err == nil:
		if !user.IsStaff {
			if err := db.WithContext(ctx).Model(&user).Update("is_staff", true).Error; err != nil {
				return fmt.Errorf("promote admin: %w", err)
			}
			// cached lookups still carry is_staff=false
			forgetUserTokens(ctx, db, user.ID)
		}
	case database.IsNotFound(err):
		user = models.User{Username: username, IsStaff: true}
		if err := user.SetPassword(password); err != nil {
			return err
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
	default:
		return fmt.Errorf("load admin: %w", err)
	}
	if _, err := GetOrCreateProfile(ctx, db, user.ID); err != nil {
		return err
	}
	if _, err := getOrCreateToken(db.WithContext(ctx), user.ID); err != nil {
		return fmt.Errorf("admin token: %w", err)
	}
	utils.Log.WithField("username", username).Info("admin account ready")
	return nil
}

// userTokenIDs returns the token ids (jti) of every stored key of userID.
func userTokenIDs(ctx context.Context, db *gorm.DB, userID uint) ([]string, error) {
	var toks []models.AuthToken
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Find(&toks).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(toks))
	for _, tok := range toks {
		claims, err := utils.ParseTokenKey(tok.Key)
		if err != nil {
			continue
		}
		ids = append(ids, claims.ID)
	}
	return ids, nil
}

// forgetUserTokens drops the cached owner of each of userID's tokens.
func forgetUserTokens(ctx context.Context, db *gorm.DB, userID uint) {
	ids, err := userTokenIDs(ctx, db, userID)
	if err != nil {
		utils.Log.WithError(err).WithField("user_id", userID).Warn("token cache not cleared")
		return
	}
	utils.ForgetTokenUsers(ctx, ids...)
}
