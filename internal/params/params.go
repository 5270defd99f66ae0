package params

import (
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Kind declares how a request parameter is filtered before the action sees it.
type Kind int

const (
	Bool Kind = iota
	Int
	Float
	Email
	String
	HTML
)

// Filter declares the expected fields of a request and their kinds.
type Filter map[string]Kind

var (
	truthyRegexp = regexp.MustCompile(`^(?i:1|true|on|yes)$`)
	emailRegexp  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Values holds the filtered parameters of one request. Fields that were
// absent or failed their cast are reported by Has and read as zero values.
type Values struct {
	values  map[string]interface{}
	present map[string]bool
}

// Parse extracts the declared fields from the request. The parameter source
// is chosen by HTTP method: query string for GET, form body for POST. Other
// methods yield an empty source.
func Parse(r *http.Request, f Filter) *Values {
	var source url.Values
	switch r.Method {
	case http.MethodGet:
		source = r.URL.Query()
	case http.MethodPost:
		_ = r.ParseForm()
		source = r.PostForm
	default:
		source = url.Values{}
	}

	v := &Values{
		values:  make(map[string]interface{}, len(f)),
		present: make(map[string]bool, len(f)),
	}

	for field, kind := range f {
		raw, ok := source[field]
		switch kind {
		case Bool:
			// Absent booleans default to false
			v.values[field] = ok && truthyRegexp.MatchString(raw[0])
			v.present[field] = true
		case Int:
			if !ok {
				continue
			}
			if n, err := strconv.ParseInt(strings.TrimSpace(raw[0]), 10, 64); err == nil {
				v.values[field] = n
				v.present[field] = true
			}
		case Float:
			if !ok {
				continue
			}
			if fl, err := strconv.ParseFloat(strings.TrimSpace(raw[0]), 64); err == nil {
				v.values[field] = fl
				v.present[field] = true
			}
		case Email:
			if !ok {
				continue
			}
			if addr := strings.TrimSpace(raw[0]); emailRegexp.MatchString(addr) {
				v.values[field] = addr
				v.present[field] = true
			}
		case String:
			if !ok {
				continue
			}
			v.values[field] = raw[0]
			v.present[field] = true
		case HTML:
			if !ok {
				continue
			}
			v.values[field] = html.EscapeString(raw[0])
			v.present[field] = true
		default:
			// Unrecognized kinds are ignored; new kinds slot in here.
		}
	}

	return v
}

// Has reports whether the field was present and passed its filter.
func (v *Values) Has(field string) bool {
	return v.present[field]
}

// String returns the field as a string, or "" when absent.
func (v *Values) String(field string) string {
	s, _ := v.values[field].(string)
	return s
}

// Bool returns the field as a bool, or false when absent.
func (v *Values) Bool(field string) bool {
	b, _ := v.values[field].(bool)
	return b
}

// Int returns the field as an int64, or 0 when absent.
func (v *Values) Int(field string) int64 {
	n, _ := v.values[field].(int64)
	return n
}

// Float returns the field as a float64, or 0 when absent.
func (v *Values) Float(field string) float64 {
	f, _ := v.values[field].(float64)
	return f
}
