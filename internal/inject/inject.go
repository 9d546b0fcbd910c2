// Package inject rewrites the source of isolated background execution
// contexts so the same playlist interception runs inside contexts that do
// their own network fetching.
package inject

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

//go:embed worker_hook.js
var workerHookTemplate string

//go:embed page_hook.js
var pageHook string

// NotifyBinding is the name of the runtime binding the page hook calls to
// surface background-context messages to the agent.
const NotifyBinding = "__wardenNotify"

// Options carries the configuration rendered into the worker bundle. The
// bundle must be self-contained, so every option it needs is baked in at
// render time.
type Options struct {
	StripAdSegments  bool
	ShowAdBanner     bool
	AdSignifier      string
	ClientID         string
	GQLEndpoint      string
	UsherEndpoint    string
	BackupPlayerType string
	BackupPlatform   string
}

// Patcher prepends the rendered interception bundle to worker sources whose
// origin belongs to the target site.
type Patcher struct {
	bundle       []byte
	originSuffix string
}

// NewPatcher renders the worker bundle once for the process lifetime.
// originSuffix is the target site's host suffix, e.g. "twitch.tv".
func NewPatcher(opts Options, originSuffix string) (*Patcher, error) {
	tmpl, err := template.New("worker_hook").Parse(workerHookTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse worker bundle template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("render worker bundle: %w", err)
	}
	return &Patcher{
		bundle:       buf.Bytes(),
		originSuffix: strings.TrimPrefix(originSuffix, "."),
	}, nil
}

// ShouldPatch reports whether a worker-script URL originates from the target
// site. Anything else passes through untouched.
func (p *Patcher) ShouldPatch(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == p.originSuffix || strings.HasSuffix(host, "."+p.originSuffix)
}

// PatchWorkerSource prepends the interception bundle to the original worker
// source. The original source is evaluated unchanged after the bundle has
// installed its fetch hook.
func (p *Patcher) PatchWorkerSource(original []byte) []byte {
	patched := make([]byte, 0, len(p.bundle)+1+len(original))
	patched = append(patched, p.bundle...)
	patched = append(patched, '\n')
	patched = append(patched, original...)
	return patched
}

// Bundle returns the rendered worker bundle.
func (p *Patcher) Bundle() []byte { return p.bundle }

// PageHook returns the main-context script that bridges worker messages to
// the agent's runtime binding.
func PageHook() string { return pageHook }
