package rabbitmq

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
)

// PluginState is the status flag pair printed by "rabbitmq-plugins list".
type PluginState struct {
	ExplicitlyEnabled bool
	ImplicitlyEnabled bool
	Running           bool
}

// Enabled reports whether the plugin is enabled either way.
func (s PluginState) Enabled() bool {
	return s.ExplicitlyEnabled || s.ImplicitlyEnabled
}

// Plugin is one line of "rabbitmq-plugins list".
type Plugin struct {
	Name    string
	Version string
	State   PluginState
}

// PluginList is the parsed output of "rabbitmq-plugins list", sorted by name.
type PluginList []Plugin

// Find returns the plugin called name.
func (l PluginList) Find(name string) (Plugin, bool) {
	for _, p := range l {
		if p.Name == name {
			return p, true
		}
	}
	return Plugin{}, false
}

func (l PluginList) filter(keep func(PluginState) bool) PluginList {
	var out PluginList
	for _, p := range l {
		if keep(p.State) {
			out = append(out, p)
		}
	}
	return out
}

// Enabled returns explicitly and implicitly enabled plugins.
func (l PluginList) Enabled() PluginList {
	return l.filter(PluginState.Enabled)
}

// ExplicitlyEnabled returns plugins enabled by name.
func (l PluginList) ExplicitlyEnabled() PluginList {
	return l.filter(func(s PluginState) bool { return s.ExplicitlyEnabled })
}

// Disabled returns plugins that are not enabled.
func (l PluginList) Disabled() PluginList {
	return l.filter(func(s PluginState) bool { return !s.Enabled() })
}

// Running returns plugins running on the node.
func (l PluginList) Running() PluginList {
	return l.filter(func(s PluginState) bool { return s.Running })
}

// Names returns the plugin names in order.
func (l PluginList) Names() []string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return names
}

// "[E*] rabbitmq_management       3.8.19"
var pluginLineRegex = regexp.MustCompile(`^\s*\[([ Ee])([ *!])\]\s+(\S+)(?:\s+(\S+))?`)

// ParsePluginList parses "rabbitmq-plugins list" output. Header and legend
// lines are ignored.
func ParsePluginList(output string) (PluginList, error) {
	var list PluginList
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := pluginLineRegex.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		list = append(list, Plugin{
			Name:    m[3],
			Version: m[4],
			State: PluginState{
				ExplicitlyEnabled: m[1] == "E",
				ImplicitlyEnabled: m[1] == "e",
				Running:           m[2] == "*",
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse plugin list: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// Plugins runs rabbitmq-plugins against an installed distribution.
type Plugins struct {
	executor command.Executor
	path     string
	dir      string
	env      map[string]string
	timeout  time.Duration
}

// NewPlugins returns a Plugins for the installation described by cfg.
func NewPlugins(cfg *config.Config, executor command.Executor) *Plugins {
	return &Plugins{
		executor: executor,
		path:     PluginsScript.Path(cfg.AppFolder(), cfg.OperatingSystem()),
		dir:      cfg.AppFolder(),
		env:      cfg.EnvVars(),
		timeout:  cfg.CtlTimeout(),
	}
}

// Run executes rabbitmq-plugins with args, bounded by the configured timeout.
func (p *Plugins) Run(ctx context.Context, args ...string) (*command.Result, error) {
	return p.executor.Run(ctx, command.Command{
		Path:    p.path,
		Args:    args,
		Env:     p.env,
		Dir:     p.dir,
		Timeout: p.timeout,
	})
}

// List returns every plugin known to the distribution.
func (p *Plugins) List(ctx context.Context) (PluginList, error) {
	res, err := p.Run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return ParsePluginList(res.Stdout)
}

// Enable enables plugins on the running node.
func (p *Plugins) Enable(ctx context.Context, names ...string) error {
	return p.toggle(ctx, "enable", false, names)
}

// EnableOffline enables plugins without contacting the node.
func (p *Plugins) EnableOffline(ctx context.Context, names ...string) error {
	return p.toggle(ctx, "enable", true, names)
}

// Disable disables plugins on the running node.
func (p *Plugins) Disable(ctx context.Context, names ...string) error {
	return p.toggle(ctx, "disable", false, names)
}

// DisableOffline disables plugins without contacting the node.
func (p *Plugins) DisableOffline(ctx context.Context, names ...string) error {
	return p.toggle(ctx, "disable", true, names)
}

func (p *Plugins) toggle(ctx context.Context, action string, offline bool, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%s plugins: no plugin names given", action)
	}
	args := []string{action}
	if offline {
		args = append(args, "--offline")
	}
	args = append(args, names...)
	if _, err := p.Run(ctx, args...); err != nil {
		return fmt.Errorf("%s plugins %s: %w", action, strings.Join(names, ","), err)
	}
	return nil
}
