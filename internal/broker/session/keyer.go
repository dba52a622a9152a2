package session

import "net/http"

// Keyer resolves the per-client storage key carried on a request and, for
// strategies that need it, arranges for the client to be handed that key
// again on the response. Two strategies exist: a secure, HttpOnly cookie
// and a header fallback for PCoIP clients that fail to echo cookies.
type Keyer interface {
	// Key returns the session key the request carries, if any.
	Key(r *http.Request) (key string, ok bool)
	// Persist arranges for key to be presented on the client's next
	// request. Called once per response that creates or updates session
	// state.
	Persist(w http.ResponseWriter, key string)
}

// CookieKeyer stores the session key in a cookie named CookieName. The
// response cookie is always Secure and HttpOnly; PCoIP clients require the
// header name to read exactly "Set-Cookie" (not "set-cookie"), which
// http.SetCookie already produces via net/http's canonical header casing.
type CookieKeyer struct {
	CookieName string
}

func (c CookieKeyer) Key(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c CookieKeyer) Persist(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Value:    key,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
	})
}

// HeaderKeyer reads the session key from a request header, used as a
// fallback when the PCoIP client fails to echo cookies. The client is
// itself the one supplying the key on every request, so there is nothing
// to persist server-side.
type HeaderKeyer struct {
	HeaderName string
}

func (h HeaderKeyer) Key(r *http.Request) (string, bool) {
	v := r.Header.Get(h.HeaderName)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h HeaderKeyer) Persist(http.ResponseWriter, string) {}
