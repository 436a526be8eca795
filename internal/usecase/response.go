package usecase

import (
	"net/http"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// View is the resolved page state handed to a renderer.
type View struct {
	Name        string
	Title       string
	Status      int
	Diagnostics domain.Diagnostics
	Fields      map[string]string
}

// Response accumulates everything a dispatch wants to send back. The transport applies it in
// one go: headers, cookies, then the redirect or the view.
type Response struct {
	Status   int
	Location string
	View     *View
	Cookies  []*http.Cookie
	Headers  http.Header
}

func newResponse() *Response {
	return &Response{Headers: make(http.Header)}
}

// IsRedirect reports whether the response ends in a redirect.
func (r *Response) IsRedirect() bool {
	return r.Location != ""
}

// SetCookie queues a cookie. A later cookie with the same name and path replaces an earlier one.
func (r *Response) SetCookie(cookies ...*http.Cookie) {
	for _, c := range cookies {
		if c == nil {
			continue
		}
		replaced := false
		for i, existing := range r.Cookies {
			if existing.Name == c.Name && existing.Path == c.Path {
				r.Cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			r.Cookies = append(r.Cookies, c)
		}
	}
}

// Cookie returns the queued cookie with the name, if any.
func (r *Response) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (r *Response) redirect(location string) *Response {
	r.Status = http.StatusFound
	r.Location = location
	r.View = nil
	return r
}

func (r *Response) render(view View) *Response {
	if view.Status == 0 {
		view.Status = http.StatusOK
	}
	if view.Fields == nil {
		view.Fields = map[string]string{}
	}
	r.Status = view.Status
	r.Location = ""
	r.View = &view
	return r
}
