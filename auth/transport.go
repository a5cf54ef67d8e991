package auth

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Transport is the HTTP channel every platform call goes through. The default
// implementation is a plain cookie-jarred client decorated with browser
// headers; production deployments swap in a client capable of mimicking a real
// browser TLS fingerprint to get past the anti-bot layer.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
	// SetCookies seeds the transport's cookie state, used when the
	// headless-browser fallback hands back a full cookie set.
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

// Headers sent on every request. The platform's front end rejects clients
// that do not look like a browser.
var browserHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Encoding": "gzip, deflate, br",
	"Accept-Language": "en-US,en;q=0.9",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
	"User-Agent": "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36",
}

type browserTransport struct {
	client *http.Client
}

// NewTransport returns the default Transport: a cookie-jarred http.Client that
// applies browser headers to every outgoing request.
func NewTransport() Transport {
	jar, _ := cookiejar.New(nil)
	return &browserTransport{client: &http.Client{Jar: jar}}
}

func (t *browserTransport) Do(req *http.Request) (*http.Response, error) {
	for k, v := range browserHeaders {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.client.Do(req)
}

func (t *browserTransport) SetCookies(u *url.URL, cookies []*http.Cookie) {
	t.client.Jar.SetCookies(u, cookies)
}
