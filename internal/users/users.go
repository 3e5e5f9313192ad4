package users

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type DB interface {
	GetByName(name string) (*User, error)
	GetByEmail(email string) (*User, error)
	DoesUserExistByEmail(email string) (bool, error)
	Insert(user User) error
	Delete(name string) error
}

// Store is the account directory. Accounts are keyed by their mailbox name,
// which is the local-part of every address hosted for them.
type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(config Configuration) *Store {
	return &Store{
		db: config.DB,
	}
}

func (s *Store) GetByName(name string) (*User, error) {
	return s.db.GetByName(name)
}

func (s *Store) GetByEmail(email string) (*User, error) {
	return s.db.GetByEmail(email)
}

func (s *Store) DoesUserExistByEmail(email string) (bool, error) {
	return s.db.DoesUserExistByEmail(email)
}

// Create assigns a fresh ID, hashes the password and inserts the user.
func (s *Store) Create(u User) error {
	hash, err := Hash(u.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.ID = GenerateID()
	u.Password = hash

	return s.db.Insert(u)
}

func (s *Store) Delete(name string) error {
	return s.db.Delete(name)
}

// Resolve looks up the account owning the given local-part.
// It returns ErrUserNotFound if there is none.
func (s *Store) Resolve(localPart string) (*User, error) {
	return s.db.GetByName(localPart)
}

// VerifyCredential reports whether secret matches the password of the account
// owning localPart. A missing account is reported as ErrUserNotFound, not as
// a mismatch.
func (s *Store) VerifyCredential(localPart, secret string) (bool, error) {
	u, err := s.db.GetByName(localPart)
	if err != nil {
		return false, err
	}

	return CheckPassword(u.Password, secret), nil
}

func GenerateID() string {
	return uuid.New().String()
}

func Hash(password string) (string, error) {
	bs, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
