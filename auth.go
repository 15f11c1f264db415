package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dodo5517/Prism/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Auth helpers live in the root package so handlers can call them directly.
func RegisterUser(email, nickname, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email required")
	}
	if nickname == "" {
		nickname = email
	}
	if len(password) < 6 { // basic password policy
		return fmt.Errorf("password too short (min 6)")
	}
	// pre-check existing (optimistic)
	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		return fmt.Errorf("user already exists")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	rid, err := userRoleID()
	if err != nil {
		return err
	}
	user := models.User{Email: email, Nickname: nickname, HashedPassword: hashedPassword, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // race condition after initial check
			return fmt.Errorf("user already exists")
		}
		return err
	}
	return nil
}

func Authenticate(email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// CreateGuestUser provisions a throwaway account so the app can be tried
// without registration. The password is random and never revealed; the
// session lives only as long as its tokens.
func CreateGuestUser() (models.User, error) {
	id := uuid.NewString()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return models.User{}, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	rid, err := userRoleID()
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		Email:          "guest-" + id + "@guest.prism.local",
		Nickname:       "guest-" + id[:8],
		HashedPassword: hashed,
		Provider:       "guest",
		ProviderID:     id,
		RoleID:         &rid,
	}
	if err := db.Create(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// userRoleID resolves the regular-user role, creating it if missing (idempotent).
func userRoleID() (uint, error) {
	var role models.Role
	if err := db.Where("name = ?", "user").First(&role).Error; err != nil {
		role = models.Role{Name: "user", Description: "regular user"}
		if err2 := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err2 != nil {
			return 0, fmt.Errorf("failed to ensure user role: %v", err2)
		}
	}
	return role.ID, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
