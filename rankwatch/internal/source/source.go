// Package source describes where a ranking page lives and which UTC offset
// governs its hour buckets.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupported is returned when a source identity has no configuration.
var ErrUnsupported = errors.New("source: unsupported source")

// Config is the immutable description of one source.
type Config struct {
	ID       string
	BaseURL  string
	ListPath string
	Offset   *time.Location
}

// New builds a validated Config. offset uses the forms accepted by ParseOffset.
func New(id, baseURL, listPath, offset string) (Config, error) {
	loc, err := ParseOffset(offset)
	if err != nil {
		return Config{}, fmt.Errorf("source %s: %w", id, err)
	}
	c := Config{ID: id, BaseURL: baseURL, ListPath: listPath, Offset: loc}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that every field is set.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return errors.New("source: id is required")
	case c.BaseURL == "" && !isAbsolute(c.ListPath):
		return fmt.Errorf("source %s: base_url is required", c.ID)
	case c.ListPath == "":
		return fmt.Errorf("source %s: list_path is required", c.ID)
	case c.Offset == nil:
		return fmt.Errorf("source %s: offset is required", c.ID)
	}
	return checkURL(c.ID, c.ResolveURL())
}

// checkURL accepts only http(s) URLs with a host.
func checkURL(id, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("source %s: invalid url: %w", id, err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("source %s: unsupported scheme %q", id, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("source %s: url has no host", id)
	}
	return nil
}

// ResolveURL returns the list page URL. An absolute path wins; otherwise
// base and path are joined with exactly one separator.
func (c Config) ResolveURL() string {
	if isAbsolute(c.ListPath) {
		return c.ListPath
	}
	base := strings.TrimRight(c.BaseURL, "/")
	path := strings.TrimLeft(c.ListPath, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http")
}

var offsetRe = regexp.MustCompile(`^([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ParseOffset parses a UTC offset such as "+09:00", "+0900", "+09", "-05:30"
// or "Z" into a fixed zone named after its canonical "+hh:mm" form.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "z" {
		return time.FixedZone("+00:00", 0), nil
	}
	m := offsetRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid offset %q", s)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	if hours > 18 || minutes > 59 || (hours == 18 && minutes > 0) {
		return nil, fmt.Errorf("offset %q out of range", s)
	}
	secs := hours*3600 + minutes*60
	if m[1] == "-" {
		secs = -secs
	}
	name := fmt.Sprintf("%s%02d:%02d", m[1], hours, minutes)
	if secs == 0 {
		name = "+00:00"
	}
	return time.FixedZone(name, secs), nil
}
