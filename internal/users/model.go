package users

// User is a locally hosted account. Name is the mailbox local-part.
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Password     string   `json:"password"`
	PrimaryEmail string   `json:"primary_email"`
	Emails       []string `json:"emails"`
}
