package usecase

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestInput is the raw material for a Request.
type RequestInput struct {
	Method    string
	Path      string
	Query     url.Values
	Form      url.Values
	Cookies   map[string]string
	Secure    bool
	ClientIP  string
	UserAgent string
	Referer   string
}

// Request is an immutable view of one login page request. Handlers read it and never write
// to it; everything they want to send back goes into a Response.
type Request struct {
	method    string
	path      string
	query     url.Values
	form      url.Values
	cookies   map[string]string
	secure    bool
	clientIP  string
	userAgent string
	referer   string
}

// NewRequest copies the input so later mutation by the caller cannot leak in.
func NewRequest(in RequestInput) *Request {
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}
	cookies := make(map[string]string, len(in.Cookies))
	for k, v := range in.Cookies {
		cookies[k] = v
	}
	return &Request{
		method:    method,
		path:      in.Path,
		query:     cloneValues(in.Query),
		form:      cloneValues(in.Form),
		cookies:   cookies,
		secure:    in.Secure,
		clientIP:  strings.TrimSpace(in.ClientIP),
		userAgent: strings.TrimSpace(in.UserAgent),
		referer:   strings.TrimSpace(in.Referer),
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func (r *Request) Method() string    { return r.method }
func (r *Request) Path() string      { return r.path }
func (r *Request) Secure() bool      { return r.secure }
func (r *Request) ClientIP() string  { return r.clientIP }
func (r *Request) UserAgent() string { return r.userAgent }
func (r *Request) Referer() string   { return r.referer }

// IsPost reports whether the request is a form submission.
func (r *Request) IsPost() bool {
	return r.method == http.MethodPost
}

// HasForm reports whether any form field was submitted.
func (r *Request) HasForm() bool {
	return len(r.form) > 0
}

// Query returns a query string parameter.
func (r *Request) Query(name string) string {
	return r.query.Get(name)
}

// HasQuery reports whether the query string carries the parameter, even empty.
func (r *Request) HasQuery(name string) bool {
	_, ok := r.query[name]
	return ok
}

// Form returns a POST body field.
func (r *Request) Form(name string) string {
	return r.form.Get(name)
}

// HasFormField reports whether the body carries the field, even empty.
func (r *Request) HasFormField(name string) bool {
	_, ok := r.form[name]
	return ok
}

// Param returns a body field, falling back to the query string.
func (r *Request) Param(name string) string {
	if v, ok := r.form[name]; ok && len(v) > 0 {
		return v[0]
	}
	return r.query.Get(name)
}

// Cookie returns a cookie value.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok && v != ""
}

// QueryWithout renders the query string minus the named parameters.
func (r *Request) QueryWithout(names ...string) url.Values {
	out := cloneValues(r.query)
	for _, name := range names {
		out.Del(name)
	}
	return out
}
