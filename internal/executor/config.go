// Package executor implements the Executor Facade (spec §4.5): a boundary
// for spawning a child process to work a task, given a resolved
// configuration and a set of textual template variables.
package executor

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// TemplateVars are substituted into {{name}} placeholders in a resolved
// ExecutorSettings' command, args, env values, working dir, and prompt
// template.
type TemplateVars struct {
	TaskID          string
	TaskTitle       string
	TaskDescription string
	TaskContext     string
}

// Apply performs textual {{name}} substitution.
func (v TemplateVars) Apply(s string) string {
	r := strings.NewReplacer(
		"{{task_id}}", v.TaskID,
		"{{task_title}}", v.TaskTitle,
		"{{task_description}}", v.TaskDescription,
		"{{task_context}}", v.TaskContext,
	)
	return r.Replace(s)
}

// PromptTemplate carries the template string injected into an agent's
// stdin/first prompt, when the executor type supports it.
type PromptTemplate struct {
	Template string `toml:"template"`
}

// ExecutorSettings is the `[executor]` table of an executor config file.
type ExecutorSettings struct {
	Type           string            `toml:"type"`
	Command        string            `toml:"command"`
	Args           []string          `toml:"args"`
	Env            map[string]string `toml:"env"`
	PromptTemplate *PromptTemplate   `toml:"prompt_template"`
	WorkingDir     *string           `toml:"working_dir"`
	TimeoutSeconds *uint64           `toml:"timeout"`
}

// Config is one executor's on-disk TOML configuration
// (<graph-dir>/executors/<name>.toml).
type Config struct {
	Executor ExecutorSettings `toml:"executor"`
}

// LoadConfig parses an executor config file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("executor: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyTemplates returns a copy of the settings with every {{name}}
// placeholder resolved against vars: command, args, env values, the prompt
// template, and working dir.
func (c *Config) ApplyTemplates(vars TemplateVars) ExecutorSettings {
	s := c.Executor

	s.Command = vars.Apply(s.Command)

	if s.Args != nil {
		args := make([]string, len(s.Args))
		for i, a := range s.Args {
			args[i] = vars.Apply(a)
		}
		s.Args = args
	}

	if s.Env != nil {
		env := make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			env[k] = vars.Apply(v)
		}
		s.Env = env
	}

	if s.PromptTemplate != nil {
		pt := *s.PromptTemplate
		pt.Template = vars.Apply(pt.Template)
		s.PromptTemplate = &pt
	}

	if s.WorkingDir != nil {
		wd := vars.Apply(*s.WorkingDir)
		s.WorkingDir = &wd
	}

	return s
}
