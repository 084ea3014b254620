package bluefox

import "encoding/json"

type Account struct {
	ID        int64  `json:"id"`
	Admin     bool   `json:"admin"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// newAccount never fails: missing or mistyped attributes leave zero values.
func newAccount(data json.RawMessage) *Account {
	var payload struct {
		Attributes Account `json:"attributes"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	account := payload.Attributes
	return &account
}
