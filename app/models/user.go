package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDisabled = "disabled"
)

const apiKeyPrefix = "cx_"

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// User is an account that can own or belong to organizations. Authentication
// and session issuance live outside this service; API keys are the only
// credential the billing core verifies itself.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Status           string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	Document         string     `gorm:"type:varchar(20);default:''" json:"-"`
	Phone            string     `gorm:"type:varchar(30);default:''" json:"-"`
	BarkDeviceKey    string     `gorm:"type:varchar(100);default:''" json:"-"`
	APIKeyHash       string     `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"-"`
	APIKeyCreatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	APIKeyLastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()
	return v.Struct(u)
}

// IssueAPIKey generates a new API key, stores its hash on the struct, and
// returns the raw secret. Callers must persist the struct afterwards.
func (u *User) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 16 {
		return "", fmt.Errorf("api key generation failed: key too short")
	}
	now := time.Now()
	u.APIKeyHash = HashAPIKey(rawKey)
	u.APIKeyPrefix = rawKey[:16]
	u.APIKeyCreatedAt = &now
	u.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// HasActiveAPIKey reports whether a usable API key is on record.
func (u *User) HasActiveAPIKey() bool {
	return u.APIKeyHash != ""
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func FindUserByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByAPIKeyHash(db *gorm.DB, hash string) (*User, error) {
	var user User
	if err := db.Where("api_key_hash = ? AND api_key_hash <> ''", hash).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
