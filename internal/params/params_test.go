package params

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseGetQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?email=a%40b.com&count=12&ratio=0.5&name=Bob", nil)
	v := Parse(r, Filter{
		"email": Email,
		"count": Int,
		"ratio": Float,
		"name":  String,
	})

	if got := v.String("email"); got != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", got)
	}
	if got := v.Int("count"); got != 12 {
		t.Errorf("count = %d, want 12", got)
	}
	if got := v.Float("ratio"); got != 0.5 {
		t.Errorf("ratio = %v, want 0.5", got)
	}
	if got := v.String("name"); got != "Bob" {
		t.Errorf("name = %q, want Bob", got)
	}
}

func TestParsePostForm(t *testing.T) {
	form := url.Values{"email": {"a@b.com"}, "password": {"hunter2"}}
	r := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	v := Parse(r, Filter{"email": Email, "password": String})
	if got := v.String("email"); got != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", got)
	}
	if got := v.String("password"); got != "hunter2" {
		t.Errorf("password = %q, want hunter2", got)
	}
}

func TestParsePostIgnoresQuery(t *testing.T) {
	r := httptest.NewRequest("POST", "/login?email=evil%40b.com", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	v := Parse(r, Filter{"email": Email})
	if v.Has("email") {
		t.Error("query parameter leaked into a POST filter")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"absent defaults false", "", false},
		{"one", "remember=1", true},
		{"true", "remember=true", true},
		{"on", "remember=on", true},
		{"yes uppercase", "remember=YES", true},
		{"zero", "remember=0", false},
		{"arbitrary", "remember=nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/x?"+tt.query, nil)
			v := Parse(r, Filter{"remember": Bool})
			if !v.Has("remember") {
				t.Fatal("bool field should always be present")
			}
			if got := v.Bool("remember"); got != tt.want {
				t.Errorf("Bool(remember) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseInvalidValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?email=not-an-email&count=abc&ratio=x", nil)
	v := Parse(r, Filter{"email": Email, "count": Int, "ratio": Float})

	for _, field := range []string{"email", "count", "ratio"} {
		if v.Has(field) {
			t.Errorf("invalid %s passed its filter", field)
		}
	}
	if v.String("email") != "" || v.Int("count") != 0 || v.Float("ratio") != 0 {
		t.Error("rejected fields should read as zero values")
	}
}

func TestParseHTMLEscapes(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?name="+url.QueryEscape(`<b>Bob & "co"</b>`), nil)
	v := Parse(r, Filter{"name": HTML})

	want := "&lt;b&gt;Bob &amp; &#34;co&#34;&lt;/b&gt;"
	if got := v.String("name"); got != want {
		t.Errorf("name = %q, want %q", got, want)
	}
}

func TestParseUndeclaredFieldsDropped(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?name=Bob&extra=1", nil)
	v := Parse(r, Filter{"name": String})

	if v.Has("extra") {
		t.Error("undeclared field survived the filter")
	}
}

func TestParseOtherMethodsEmpty(t *testing.T) {
	r := httptest.NewRequest("DELETE", "/x?name=Bob", nil)
	v := Parse(r, Filter{"name": String})
	if v.Has("name") {
		t.Error("non-GET/POST request should yield no parameters")
	}
}
