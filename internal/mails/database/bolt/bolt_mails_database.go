// Package bolt stores mailboxes and mails in a bbolt file. Keys are
// "<user>/<mailbox uid>" and "<user>/<mailbox uid>/<mail uid>" so a prefix
// scan lists a user's mailboxes or a mailbox's mails.
package bolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/OliverSchlueter/mail-transfer/internal/mails"
	bbolt "go.etcd.io/bbolt"
)

var (
	bucketMailboxes = []byte("mailboxes")
	bucketMails     = []byte("mails")
)

type DB struct {
	db *bbolt.DB
}

// NewDB prepares the mailbox and mail buckets in an already opened bbolt
// database.
func NewDB(db *bbolt.DB) (*DB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMailboxes, bucketMails} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

func userPrefix(userID string) []byte {
	return []byte(userID + "/")
}

func mailboxKey(userID string, uid uint32) []byte {
	return []byte(fmt.Sprintf("%s/%010d", userID, uid))
}

func mailPrefix(userID string, mailboxUID uint32) []byte {
	return []byte(fmt.Sprintf("%s/%010d/", userID, mailboxUID))
}

func mailKey(userID string, mailboxUID, uid uint32) []byte {
	return []byte(fmt.Sprintf("%s/%010d/%010d", userID, mailboxUID, uid))
}

func scan[T any](b *bbolt.Bucket, prefix []byte, fn func(T) bool) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if !fn(item) {
			return nil
		}
	}
	return nil
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (db *DB) GetMailboxes(userID string) ([]mails.Mailbox, error) {
	var list []mails.Mailbox
	err := db.db.View(func(tx *bbolt.Tx) error {
		return scan(tx.Bucket(bucketMailboxes), userPrefix(userID), func(mb mails.Mailbox) bool {
			list = append(list, mb)
			return true
		})
	})
	return list, err
}

func (db *DB) GetMailboxByUID(userID string, uid uint32) (*mails.Mailbox, error) {
	var mb *mails.Mailbox
	err := db.db.View(func(tx *bbolt.Tx) error {
		var err error
		mb, err = getMailbox(tx, userID, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mb, nil
}

func getMailbox(tx *bbolt.Tx, userID string, uid uint32) (*mails.Mailbox, error) {
	data := tx.Bucket(bucketMailboxes).Get(mailboxKey(userID, uid))
	if data == nil {
		return nil, mails.ErrMailboxNotFound
	}

	var mb mails.Mailbox
	if err := json.Unmarshal(data, &mb); err != nil {
		return nil, err
	}
	return &mb, nil
}

func (db *DB) GetMailboxByName(userID string, name string) (*mails.Mailbox, error) {
	var found *mails.Mailbox
	err := db.db.View(func(tx *bbolt.Tx) error {
		return scan(tx.Bucket(bucketMailboxes), userPrefix(userID), func(mb mails.Mailbox) bool {
			if mb.Name == name {
				found = &mb
				return false
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, mails.ErrMailboxNotFound
	}
	return found, nil
}

func (db *DB) InsertMailbox(mailbox mails.Mailbox) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMailboxes)

		var highest uint32
		var exists bool
		err := scan(b, userPrefix(mailbox.UserID), func(mb mails.Mailbox) bool {
			if mb.Name == mailbox.Name || (mailbox.UID != 0 && mb.UID == mailbox.UID) {
				exists = true
				return false
			}
			if mb.UID > highest {
				highest = mb.UID
			}
			return true
		})
		if err != nil {
			return err
		}
		if exists {
			return mails.ErrMailboxAlreadyExists
		}

		if mailbox.UID == 0 {
			mailbox.UID = highest + 1
		}

		return put(b, mailboxKey(mailbox.UserID, mailbox.UID), mailbox)
	})
}

func (db *DB) UpdateMailbox(mailbox mails.Mailbox) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getMailbox(tx, mailbox.UserID, mailbox.UID); err != nil {
			return err
		}
		return put(tx.Bucket(bucketMailboxes), mailboxKey(mailbox.UserID, mailbox.UID), mailbox)
	})
}

func (db *DB) DeleteMailbox(userID string, uid uint32) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getMailbox(tx, userID, uid); err != nil {
			return err
		}

		b := tx.Bucket(bucketMails)
		prefix := mailPrefix(userID, uid)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMailboxes).Delete(mailboxKey(userID, uid))
	})
}

func (db *DB) GetMails(userID string, mailboxUID uint32) ([]mails.Mail, error) {
	var list []mails.Mail
	err := db.db.View(func(tx *bbolt.Tx) error {
		return scan(tx.Bucket(bucketMails), mailPrefix(userID, mailboxUID), func(m mails.Mail) bool {
			list = append(list, m)
			return true
		})
	})
	return list, err
}

func (db *DB) GetMailByUID(userID string, mailboxUID uint32, uid uint32) (*mails.Mail, error) {
	var mail *mails.Mail
	err := db.db.View(func(tx *bbolt.Tx) error {
		if _, err := getMailbox(tx, userID, mailboxUID); err != nil {
			return err
		}

		data := tx.Bucket(bucketMails).Get(mailKey(userID, mailboxUID, uid))
		if data == nil {
			return mails.ErrMailNotFound
		}

		var m mails.Mail
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		mail = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mail, nil
}

func (db *DB) InsertMail(userID string, mailboxUID uint32, mail mails.Mail) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getMailbox(tx, userID, mailboxUID); err != nil {
			return err
		}

		b := tx.Bucket(bucketMails)
		if mail.UID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			mail.UID = uint32(seq)
		}

		key := mailKey(userID, mailboxUID, mail.UID)
		if b.Get(key) != nil {
			return mails.ErrMailAlreadyExists
		}

		mail.UserID = userID
		mail.MailboxUID = mailboxUID
		return put(b, key, mail)
	})
}

func (db *DB) UpdateMail(userID string, mailboxUID uint32, mail mails.Mail) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMails)
		key := mailKey(userID, mailboxUID, mail.UID)
		if b.Get(key) == nil {
			return mails.ErrMailNotFound
		}

		mail.UserID = userID
		mail.MailboxUID = mailboxUID
		return put(b, key, mail)
	})
}

func (db *DB) DeleteMail(userID string, mailboxUID uint32, uid uint32) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getMailbox(tx, userID, mailboxUID); err != nil {
			return err
		}

		b := tx.Bucket(bucketMails)
		key := mailKey(userID, mailboxUID, uid)
		if b.Get(key) == nil {
			return mails.ErrMailNotFound
		}
		return b.Delete(key)
	})
}
