// Package bolt stores accounts in a bbolt file, one JSON document per
// account keyed by its name.
package bolt

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/OliverSchlueter/mail-transfer/internal/users"
	bbolt "go.etcd.io/bbolt"
)

var bucketUsers = []byte("users")

var errFound = errors.New("found")

type DB struct {
	db *bbolt.DB
}

// NewDB prepares the users bucket in an already opened bbolt database.
func NewDB(db *bbolt.DB) (*DB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUsers)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

func (db *DB) GetByName(name string) (*users.User, error) {
	var user *users.User
	err := db.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(name))
		if data == nil {
			return users.ErrUserNotFound
		}

		var u users.User
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *DB) GetByEmail(email string) (*users.User, error) {
	var user *users.User
	err := db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, data []byte) error {
			var u users.User
			if err := json.Unmarshal(data, &u); err != nil {
				return err
			}
			if hasEmail(u, email) {
				user = &u
				return errFound
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, err
	}
	if user == nil {
		return nil, users.ErrUserNotFound
	}

	return user, nil
}

func (db *DB) DoesUserExistByEmail(email string) (bool, error) {
	_, err := db.GetByEmail(email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (db *DB) Insert(user users.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	return db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.Name)) != nil {
			return users.ErrUserAlreadyExists
		}
		return b.Put([]byte(user.Name), data)
	})
}

func (db *DB) Delete(name string) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(name)) == nil {
			return users.ErrUserNotFound
		}
		return b.Delete([]byte(name))
	})
}

func hasEmail(user users.User, email string) bool {
	if strings.EqualFold(user.PrimaryEmail, email) {
		return true
	}

	for _, userEmail := range user.Emails {
		if strings.EqualFold(userEmail, email) {
			return true
		}
	}

	return false
}
