package auth

import (
	"context"
	"net/http"
)

// LoginTokens is the triple served by the token-provider endpoint. The login
// form carries a dynamically named honeypot field (NameFieldName), and the
// encrypted token must be submitted under TokenFieldName.
type LoginTokens struct {
	NameFieldName  string `json:"nameFieldName"`
	TokenFieldName string `json:"validFromFieldName"`
	EncryptedToken string `json:"encryptedValidFrom"`
}

func (t *LoginTokens) complete() bool {
	return t != nil && t.NameFieldName != "" && t.TokenFieldName != "" && t.EncryptedToken != ""
}

// BrowserFallback fetches the login tokens and a full cookie set through a
// headless browser. It is consulted exactly once, when the plain transport is
// classified as blocked by the anti-bot layer; it is never retried.
type BrowserFallback interface {
	FetchLoginTokens(ctx context.Context) (*LoginTokens, []*http.Cookie, error)
}
