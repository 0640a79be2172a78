package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CytoscapeReady is true once a Cytoscape instance on window.cy holds nodes.
const CytoscapeReady = `window.cy && window.cy.nodes && window.cy.nodes().length > 0`

// CytoscapeNodeCount samples the node count of window.cy.
const CytoscapeNodeCount = `window.cy && window.cy.nodes ? window.cy.nodes().length : -1`

// Preset is a named, ready-made target. The three presets cover the ways the
// graph page is usually captured; none supersedes another.
type Preset struct {
	Name        string
	Description string
	build       func() (Target, error)
}

// Target builds the preset's target with defaults applied.
func (p Preset) Target() (Target, error) {
	t, err := p.build()
	if err != nil {
		return Target{}, err
	}
	t.Name = p.Name
	t.ApplyDefaults()
	return t, nil
}

// DefaultPreset is used when no preset, target or URL is given.
const DefaultPreset = "file"

var presets = map[string]Preset{
	"file": {
		Name:        "file",
		Description: "index.html from the working directory, wait for window.cy nodes, 500ms settle",
		build: func() (Target, error) {
			u, err := FileURL("index.html")
			if err != nil {
				return Target{}, err
			}
			return Target{URL: u, Ready: CytoscapeReady, Settle: 500 * time.Millisecond}, nil
		},
	},
	"file-settle": {
		Name:        "file-settle",
		Description: "index.html from the working directory, wait for #cy then a fixed 500ms settle",
		build: func() (Target, error) {
			u, err := FileURL("index.html")
			if err != nil {
				return Target{}, err
			}
			return Target{URL: u, Settle: 500 * time.Millisecond}, nil
		},
	},
	"server": {
		Name:        "server",
		Description: "page served at http://localhost:8080/, wait until the window.cy node count is stable",
		build: func() (Target, error) {
			return Target{
				URL:    "http://localhost:8080/",
				Ready:  CytoscapeReady,
				Stable: CytoscapeNodeCount,
			}, nil
		},
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// Presets returns every built-in preset sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, name := range PresetNames() {
		out = append(out, presets[name])
	}
	return out
}

// PresetNames returns the built-in preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
