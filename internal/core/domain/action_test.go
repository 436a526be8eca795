package domain

import (
	"net/url"
	"testing"
)

func TestResolveActionPrefersBody(t *testing.T) {
	cases := []struct {
		name  string
		form  url.Values
		query url.Values
		want  Action
	}{
		{name: "query only", query: url.Values{"action": {"lostpassword"}}, want: ActionLostPassword},
		{name: "body overrides query", form: url.Values{"action": {"login"}}, query: url.Values{"action": {"checkemail"}}, want: ActionLogin},
		{name: "empty body value still wins", form: url.Values{"action": {""}}, query: url.Values{"action": {"register"}}, want: ActionLogin},
		{name: "unknown body value", form: url.Values{"action": {"bogus"}}, query: url.Values{"action": {"register"}}, want: ActionLogin},
		{name: "body without action", form: url.Values{"log": {"alice"}}, query: url.Values{"action": {"rp"}}, want: ActionResetPassword},
		{name: "nothing", want: ActionLogin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveAction(tc.form, tc.query); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
