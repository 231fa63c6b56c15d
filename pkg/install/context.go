package install

import (
	"path/filepath"

	"github.com/google/uuid"
)

// Context is the state of one install run. It records which package names
// the run has visited; a name is processed at most once per Context,
// whatever version later requests ask for.
//
// A Context belongs to a single run and must not be shared between
// concurrent runs.
type Context struct {
	Global  bool   // install under the global root and create shims
	BaseDir string // project directory for local installs
	RunID   string // correlates log lines of one run

	visited map[string]struct{}
	order   []string
}

// NewContext returns a fresh Context. baseDir is made absolute; it is
// ignored for global installs.
func NewContext(baseDir string, global bool) *Context {
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	return &Context{
		Global:  global,
		BaseDir: baseDir,
		RunID:   uuid.NewString(),
		visited: make(map[string]struct{}),
	}
}

// visit marks name as visited and reports whether it was new.
func (c *Context) visit(name string) bool {
	if c.visited == nil {
		c.visited = make(map[string]struct{})
	}
	if _, ok := c.visited[name]; ok {
		return false
	}
	c.visited[name] = struct{}{}
	c.order = append(c.order, name)
	return true
}

// Visited reports whether name has been visited in this run.
func (c *Context) Visited(name string) bool {
	_, ok := c.visited[name]
	return ok
}

// Packages returns the visited names in visit order.
func (c *Context) Packages() []string {
	return append([]string(nil), c.order...)
}
