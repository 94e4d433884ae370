package models

import (
	"golang.org/x/crypto/bcrypt"
)

// Admin is the single researcher account configured for the results pages.
type Admin struct {
	Username     string
	PasswordHash string
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (a *Admin) CheckPassword(password string) bool {
	if a.PasswordHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	return err == nil
}
