package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied to any target field left unset.
const (
	DefaultSelector          = "#cy"
	DefaultOutput            = "docs/tree.png"
	DefaultWidth             = 1200
	DefaultHeight            = 800
	DefaultNavigationTimeout = 30 * time.Second
	DefaultReadyTimeout      = 30 * time.Second
	DefaultStableInterval    = 250 * time.Millisecond
	DefaultParallel          = 2
)

// Viewport is the browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Target describes one capture: what to load, what to wait for and where to
// write the bitmap.
type Target struct {
	Name string `yaml:"-"`

	// URL is a file://, http:// or https:// address. When Serve is set it may
	// be a path relative to the served directory, or empty for its root.
	URL   string `yaml:"url"`
	Serve string `yaml:"serve"`

	Selector string   `yaml:"selector"`
	Output   string   `yaml:"output"`
	Viewport Viewport `yaml:"viewport"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`

	// Ready is a JS expression polled until truthy.
	Ready string `yaml:"ready"`
	// Stable is a JS expression yielding a number; readiness requires two
	// consecutive samples, StableInterval apart, to be equal.
	Stable         string        `yaml:"stable"`
	StableInterval time.Duration `yaml:"stable_interval"`

	// Settle is a fixed delay applied after all waits.
	Settle time.Duration `yaml:"settle"`

	MaxWidth uint `yaml:"max_width"`
}

// Browser configures how the headless browser is launched.
type Browser struct {
	Bin        string `yaml:"bin"`
	NoSandbox  bool   `yaml:"no_sandbox"`
	ProfileDir string `yaml:"profile_dir"`
}

// Config is the contents of graphsnap.yml.
type Config struct {
	Browser  Browser           `yaml:"browser"`
	Parallel int               `yaml:"parallel"`
	Debug    bool              `yaml:"debug"`
	Targets  map[string]Target `yaml:"targets"`
}

// Load reads and parses a YAML config file. Target names are filled in from
// their map keys, and bare paths in url are local files relative to the
// config file unless the target serves a directory.
func Load(path string) (Config, error) {
	c := Config{}
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Parallel <= 0 {
		c.Parallel = DefaultParallel
	}
	dir := filepath.Dir(path)
	for name, t := range c.Targets {
		t.Name = name
		if t.Serve == "" && t.URL != "" && !strings.Contains(t.URL, "://") {
			p := t.URL
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			u, err := FileURL(p)
			if err != nil {
				return c, fmt.Errorf("target %s: %w", name, err)
			}
			t.URL = u
		}
		c.Targets[name] = t
	}
	return c, nil
}

// Target returns the named target with defaults applied.
func (c Config) Target(name string) (Target, error) {
	t, ok := c.Targets[name]
	if !ok {
		return Target{}, fmt.Errorf("unknown target %q (configured: %s)", name, strings.Join(c.TargetNames(), ", "))
	}
	t.Name = name
	t.ApplyDefaults()
	return t, nil
}

// TargetNames returns configured target names in sorted order.
func (c Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyDefaults fills every zero field with its default value.
func (t *Target) ApplyDefaults() {
	if t.Selector == "" {
		t.Selector = DefaultSelector
	}
	if t.Output == "" {
		t.Output = DefaultOutput
	}
	if t.Viewport.Width == 0 {
		t.Viewport.Width = DefaultWidth
	}
	if t.Viewport.Height == 0 {
		t.Viewport.Height = DefaultHeight
	}
	if t.NavigationTimeout == 0 {
		t.NavigationTimeout = DefaultNavigationTimeout
	}
	if t.ReadyTimeout == 0 {
		t.ReadyTimeout = DefaultReadyTimeout
	}
	if t.Stable != "" && t.StableInterval == 0 {
		t.StableInterval = DefaultStableInterval
	}
}

// Merge overlays every non-zero field of o onto t.
func (t *Target) Merge(o Target) {
	if o.Name != "" {
		t.Name = o.Name
	}
	if o.URL != "" {
		t.URL = o.URL
	}
	if o.Serve != "" {
		t.Serve = o.Serve
	}
	if o.Selector != "" {
		t.Selector = o.Selector
	}
	if o.Output != "" {
		t.Output = o.Output
	}
	if o.Viewport.Width != 0 {
		t.Viewport.Width = o.Viewport.Width
	}
	if o.Viewport.Height != 0 {
		t.Viewport.Height = o.Viewport.Height
	}
	if o.NavigationTimeout != 0 {
		t.NavigationTimeout = o.NavigationTimeout
	}
	if o.ReadyTimeout != 0 {
		t.ReadyTimeout = o.ReadyTimeout
	}
	if o.Ready != "" {
		t.Ready = o.Ready
	}
	if o.Stable != "" {
		t.Stable = o.Stable
	}
	if o.StableInterval != 0 {
		t.StableInterval = o.StableInterval
	}
	if o.Settle != 0 {
		t.Settle = o.Settle
	}
	if o.MaxWidth != 0 {
		t.MaxWidth = o.MaxWidth
	}
}

// Validate reports the first problem that would make a run impossible.
func (t Target) Validate() error {
	if t.URL == "" && t.Serve == "" {
		return fmt.Errorf("target %s: url is required", t.label())
	}
	if t.Selector == "" {
		return fmt.Errorf("target %s: selector is required", t.label())
	}
	if t.Output == "" {
		return fmt.Errorf("target %s: output is required", t.label())
	}
	if t.Viewport.Width <= 0 || t.Viewport.Height <= 0 {
		return fmt.Errorf("target %s: viewport must be positive, got %s", t.label(), t.Viewport)
	}
	for field, d := range map[string]time.Duration{
		"navigation_timeout": t.NavigationTimeout,
		"ready_timeout":      t.ReadyTimeout,
		"stable_interval":    t.StableInterval,
		"settle":             t.Settle,
	} {
		if d < 0 {
			return fmt.Errorf("target %s: %s must be >= 0", t.label(), field)
		}
	}
	if t.Serve != "" {
		info, err := os.Stat(t.Serve)
		if err != nil {
			return fmt.Errorf("target %s: serve directory: %w", t.label(), err)
		}
		if !info.IsDir() {
			return fmt.Errorf("target %s: serve path %s is not a directory", t.label(), t.Serve)
		}
		return nil
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("target %s: invalid url: %w", t.label(), err)
	}
	switch u.Scheme {
	case "file", "http", "https":
	default:
		return fmt.Errorf("target %s: unsupported url scheme %q (want file, http or https)", t.label(), u.Scheme)
	}
	return nil
}

func (t Target) label() string {
	if t.Name == "" {
		return "<unnamed>"
	}
	return t.Name
}

// FileURL converts a local path into an absolute file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
