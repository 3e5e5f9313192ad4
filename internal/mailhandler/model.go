package mailhandler

type CreateMailReq struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type MailboxReq struct {
	Name string `json:"name"`
}

type UpdateMailReq struct {
	Flags []string `json:"flags"`
}
