// Package respond implements the response composer: every controller action
// builds exactly one Composer, which ends the request in one of three
// mutually exclusive output modes (HTML template, JSON, redirect) and may
// carry a deferred task to run after the response has been flushed.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Mode is the terminal output mode of a request.
type Mode int

const (
	ModeHTML Mode = iota
	ModeJSON
	ModeRedirect
)

// Task is deferred work that runs strictly after the client-visible response
// has been sent and the session lock released.
type Task func(ctx context.Context)

// Renderer produces the HTML body from bound view values.
type Renderer interface {
	Bind(name string, value interface{})
	Render() ([]byte, error)
}

// Composer accumulates the response of one request. The zero state is HTML
// mode with view rendering enabled and status 200; the last mode switch
// among Redirect and JSON wins.
type Composer struct {
	mode     Mode
	status   int
	location string
	loadView bool
	renderer Renderer

	list      []interface{}
	named     map[string]interface{}
	wholesale interface{}
	hasNamed  bool
	replaced  bool

	task Task
}

// New creates a composer in HTML mode. The renderer may be nil for actions
// that always redirect or emit JSON.
func New(renderer Renderer) *Composer {
	return &Composer{
		mode:     ModeHTML,
		loadView: true,
		renderer: renderer,
		named:    make(map[string]interface{}),
	}
}

// Mode returns the current output mode.
func (c *Composer) Mode() Mode {
	return c.mode
}

// Set binds a named value into the response. In HTML mode the value goes to
// the render context; in JSON mode an empty name appends to the ordered
// output list, a non-empty name sets a key in the output mapping. Under
// redirect the value is dropped.
func (c *Composer) Set(name string, value interface{}) {
	switch c.mode {
	case ModeHTML:
		if c.loadView && c.renderer != nil {
			c.renderer.Bind(name, value)
		}
	case ModeJSON:
		if name == "" {
			c.list = append(c.list, value)
		} else {
			c.named[name] = value
			c.hasNamed = true
		}
	}
}

// Status overrides the HTTP status code of the eventual response,
// independent of mode.
func (c *Composer) Status(code int) {
	c.status = code
}

// Redirect switches to redirect mode.
func (c *Composer) Redirect(location string) {
	c.mode = ModeRedirect
	c.location = location
}

// JSON switches to JSON mode. An argument replaces the accumulated output:
// a slice seeds the ordered list and a map seeds the named mapping, and
// later Set calls keep merging into the seeded content. Any other value is
// emitted as-is.
func (c *Composer) JSON(content ...interface{}) {
	c.mode = ModeJSON
	if len(content) == 0 {
		return
	}

	c.list = nil
	c.named = make(map[string]interface{})
	c.hasNamed = false
	c.wholesale = nil
	c.replaced = false

	switch v := content[0].(type) {
	case []interface{}:
		c.list = append(c.list, v...)
	case map[string]interface{}:
		for k, val := range v {
			c.named[k] = val
		}
		c.hasNamed = len(c.named) > 0
	default:
		c.wholesale = v
		c.replaced = true
	}
}

// LoadView toggles whether HTML mode renders the template, allowing
// status-only HTML responses.
func (c *Composer) LoadView(ok bool) {
	c.loadView = ok
}

// PostProcess registers a task to run after the response has been flushed
// and the connection released. Intended for slow work like outbound email.
func (c *Composer) PostProcess(task Task) {
	c.task = task
}

// Task returns the registered post-process task, if any.
func (c *Composer) Task() Task {
	return c.task
}

// body renders the response body and content type for the chosen mode.
func (c *Composer) body() ([]byte, string, error) {
	switch c.mode {
	case ModeRedirect:
		return nil, "", nil
	case ModeJSON:
		content := c.jsonContent()
		data, err := json.MarshalIndent(content, "", "    ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode json response: %w", err)
		}
		return data, "application/json", nil
	default:
		if !c.loadView || c.renderer == nil {
			return nil, "text/html; charset=utf-8", nil
		}
		data, err := c.renderer.Render()
		if err != nil {
			return nil, "", fmt.Errorf("failed to render view: %w", err)
		}
		return data, "text/html; charset=utf-8", nil
	}
}

// jsonContent picks the JSON payload: the opaque replacement if one was
// given, a mapping when any named key was set (list items keep numeric
// keys), and an ordered list otherwise.
func (c *Composer) jsonContent() interface{} {
	if c.replaced {
		return c.wholesale
	}
	if c.hasNamed {
		out := make(map[string]interface{}, len(c.named)+len(c.list))
		for i, v := range c.list {
			out[strconv.Itoa(i)] = v
		}
		for k, v := range c.named {
			out[k] = v
		}
		return out
	}
	if c.list == nil {
		return []interface{}{}
	}
	return c.list
}

// Send writes the terminal response. The body is rendered to a buffer first
// so a Content-Length is always set; when a post-process task is registered
// the connection is additionally marked close and compression disabled, so
// the client sees a complete response before the task runs. Send does not
// run the task; the dispatcher does, after releasing the session lock.
func (c *Composer) Send(w http.ResponseWriter, r *http.Request) error {
	body, contentType, err := c.body()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return err
	}

	status := c.status
	if status == 0 {
		if c.mode == ModeRedirect {
			status = http.StatusFound
		} else {
			status = http.StatusOK
		}
	}

	header := w.Header()
	if c.mode == ModeRedirect {
		header.Set("Location", c.location)
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	if c.task != nil {
		header.Set("Connection", "close")
		// No Content-Encoding: the body length must match what the wire
		// carries or the client keeps waiting past the flush.
		header.Del("Content-Encoding")
	}

	w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
