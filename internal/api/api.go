// Package api holds the wire types of the action-dispatched token/mail
// endpoint shared by the CLI client and the backend server.
package api

import (
	"github.com/mikey/phish-scanner/internal/core"
)

// Action selects what the endpoint does with a request
type Action string

const (
	ActionLogin             Action = "login"
	ActionExchangeMailToken Action = "exchange_mail_token"
	ActionRefreshToken      Action = "refresh_token"
	ActionRetrieveMail      Action = "retrieve_mail"
)

// ExchangeActionFor returns the code exchange action for slot
func ExchangeActionFor(slot core.Slot) Action {
	if slot == core.SlotMail {
		return ActionExchangeMailToken
	}
	return ActionLogin
}

// Request is the body of every endpoint call
type Request struct {
	Action       Action `json:"action"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// MailResponse is returned by retrieve_mail
type MailResponse struct {
	Mails []core.EmailItem `json:"mails"`
}

// ErrorResponse is returned with every non-success status
type ErrorResponse struct {
	Error string `json:"error"`
}
