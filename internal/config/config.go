// Package config reads the YAML settings/declaration file and applies it to
// the store. Apply is additive and idempotent: existing objects are skipped,
// never modified or removed.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/scripter/internal/cron"
	"github.com/roach88/scripter/internal/store"
)

// Settings tunes the daemon. Zero values fall back to defaults at the point
// of use.
type Settings struct {
	DBPath                 string `yaml:"db_path,omitempty"`
	TickSeconds            int    `yaml:"tick_seconds,omitempty"`
	FileQuietSeconds       int    `yaml:"file_quiet_seconds,omitempty"`
	FileMinIntervalSeconds int    `yaml:"file_min_interval_seconds,omitempty"`
	ExecTimeoutSeconds     int    `yaml:"exec_timeout_seconds,omitempty"`
	WebhookHost            string `yaml:"webhook_host,omitempty"`
	WebhookPort            int    `yaml:"webhook_port,omitempty"`
}

// Tick returns the configured poll interval, or zero when unset so the
// scheduler applies its own default.
func (s Settings) Tick() time.Duration { return time.Duration(s.TickSeconds) * time.Second }

// ExecTimeout returns the configured run timeout, zero when unset.
func (s Settings) ExecTimeout() time.Duration {
	return time.Duration(s.ExecTimeoutSeconds) * time.Second
}

// FileQuiet returns the file-watch quiet period, zero when unset.
func (s Settings) FileQuiet() time.Duration {
	return time.Duration(s.FileQuietSeconds) * time.Second
}

// FileMinInterval returns the file-watch rate cap, zero when unset.
func (s Settings) FileMinInterval() time.Duration {
	return time.Duration(s.FileMinIntervalSeconds) * time.Second
}

// WebhookAddr returns the listen address for the webhook server.
func (s Settings) WebhookAddr() string {
	host := s.WebhookHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.WebhookPort
	if port == 0 {
		port = 8611
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ScriptDef declares a script by name.
type ScriptDef struct {
	Name       string `yaml:"name"`
	Command    string `yaml:"command"`
	WorkingDir string `yaml:"cwd,omitempty"`
}

// ScheduleDef declares a schedule on a script, referenced by name. Exactly
// one of IntervalSeconds and Cron must be set.
type ScheduleDef struct {
	Script          string `yaml:"script"`
	IntervalSeconds int64  `yaml:"interval_seconds,omitempty"`
	Cron            string `yaml:"cron,omitempty"`
	TZ              string `yaml:"tz,omitempty"`
}

// FileTriggerDef declares a file watch on a script.
type FileTriggerDef struct {
	Script    string `yaml:"script"`
	Path      string `yaml:"path"`
	Recursive bool   `yaml:"recursive,omitempty"`
}

// WebhookDef declares a webhook name for a script.
type WebhookDef struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script"`
}

// File is the full document: optional settings plus declarative objects.
type File struct {
	Settings     *Settings        `yaml:"settings,omitempty"`
	Scripts      []ScriptDef      `yaml:"scripts,omitempty"`
	Schedules    []ScheduleDef    `yaml:"schedules,omitempty"`
	FileTriggers []FileTriggerDef `yaml:"file_triggers,omitempty"`
	Webhooks     []WebhookDef     `yaml:"webhooks,omitempty"`
}

// Load reads and parses a config file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}

// LoadSettings reads just the settings from a config file. An empty path
// yields zero-value settings, which every consumer treats as defaults.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Settings{}, nil
	}
	f, err := Load(path)
	if err != nil {
		return Settings{}, err
	}
	if f.Settings == nil {
		return Settings{}, nil
	}
	return *f.Settings, nil
}

// ApplyResult counts what Apply did.
type ApplyResult struct {
	ScriptsAdded      int
	ScriptsSkipped    int
	SchedulesAdded    int
	SchedulesSkipped  int
	FileTriggersAdded int
	FileTriggersSkip  int
	WebhooksAdded     int
	WebhooksSkipped   int
}

// Apply validates the whole file and then adds its objects to the store.
// Scripts are matched by name and skipped when present; schedules, file
// triggers and webhooks are skipped when an identical one already exists.
// Nothing is ever modified or deleted, so applying the same file twice is a
// no-op. Validation runs before any write, so a file with a bad cron
// expression or a dangling script reference leaves the store untouched.
func Apply(ctx context.Context, st *store.Store, f *File) (*ApplyResult, error) {
	if err := validate(ctx, st, f); err != nil {
		return nil, err
	}

	res := &ApplyResult{}

	ids := make(map[string]int64) // script name -> id
	existing, err := st.ListScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for _, sc := range existing {
		ids[sc.Name] = sc.ID
	}

	for _, def := range f.Scripts {
		if _, ok := ids[def.Name]; ok {
			res.ScriptsSkipped++
			continue
		}
		id, err := st.AddScript(ctx, def.Name, def.Command, def.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("apply script %q: %w", def.Name, err)
		}
		ids[def.Name] = id
		res.ScriptsAdded++
	}

	schedules, err := st.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for _, def := range f.Schedules {
		scriptID := ids[def.Script]
		if scheduleExists(schedules, scriptID, def) {
			res.SchedulesSkipped++
			continue
		}
		if def.Cron != "" {
			_, err = st.AddCronSchedule(ctx, scriptID, def.Cron, def.TZ)
		} else {
			_, err = st.AddIntervalSchedule(ctx, scriptID, def.IntervalSeconds)
		}
		if err != nil {
			return nil, fmt.Errorf("apply schedule for %q: %w", def.Script, err)
		}
		res.SchedulesAdded++
	}

	triggers, err := st.ListFileTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for _, def := range f.FileTriggers {
		scriptID := ids[def.Script]
		if fileTriggerExists(triggers, scriptID, def) {
			res.FileTriggersSkip++
			continue
		}
		if _, err := st.AddFileTrigger(ctx, scriptID, def.Path, def.Recursive); err != nil {
			return nil, fmt.Errorf("apply file trigger for %q: %w", def.Script, err)
		}
		res.FileTriggersAdded++
	}

	for _, def := range f.Webhooks {
		_, err := st.AddWebhook(ctx, def.Name, ids[def.Script])
		if err != nil {
			if isConflict(err) {
				res.WebhooksSkipped++
				continue
			}
			return nil, fmt.Errorf("apply webhook %q: %w", def.Name, err)
		}
		res.WebhooksAdded++
	}

	return res, nil
}

// Export reads the store's declarative objects back into a File, suitable
// for feeding to Apply elsewhere. Settings are file-level, not stored, so
// the export carries none.
func Export(ctx context.Context, st *store.Store) (*File, error) {
	f := &File{}

	scripts, err := st.ListScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	for _, sc := range scripts {
		f.Scripts = append(f.Scripts, ScriptDef{Name: sc.Name, Command: sc.Command, WorkingDir: sc.WorkingDir})
	}

	schedules, err := st.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	for _, sch := range schedules {
		def := ScheduleDef{Script: sch.ScriptName, Cron: sch.Cron, TZ: sch.TZ}
		if sch.IntervalSeconds != nil {
			def.IntervalSeconds = *sch.IntervalSeconds
		}
		f.Schedules = append(f.Schedules, def)
	}

	triggers, err := st.ListFileTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	for _, ft := range triggers {
		f.FileTriggers = append(f.FileTriggers, FileTriggerDef{Script: ft.ScriptName, Path: ft.Path, Recursive: ft.Recursive})
	}

	webhooks, err := st.ListWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	for _, wh := range webhooks {
		f.Webhooks = append(f.Webhooks, WebhookDef{Name: wh.Name, Script: wh.ScriptName})
	}

	return f, nil
}

// Marshal renders a File as YAML.
func Marshal(f *File) ([]byte, error) {
	out, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func validate(ctx context.Context, st *store.Store, f *File) error {
	known := make(map[string]bool)
	existing, err := st.ListScripts(ctx)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	for _, sc := range existing {
		known[sc.Name] = true
	}
	for _, def := range f.Scripts {
		if def.Name == "" {
			return fmt.Errorf("validate: script with empty name")
		}
		if def.Command == "" {
			return fmt.Errorf("validate: script %q has no command", def.Name)
		}
		known[def.Name] = true
	}

	for _, def := range f.Schedules {
		if !known[def.Script] {
			return fmt.Errorf("validate: schedule references unknown script %q", def.Script)
		}
		switch {
		case def.Cron != "" && def.IntervalSeconds != 0:
			return fmt.Errorf("validate: schedule for %q sets both cron and interval", def.Script)
		case def.Cron != "":
			if err := cron.Parse(def.Cron); err != nil {
				return fmt.Errorf("validate: schedule for %q: %w", def.Script, err)
			}
			if def.TZ != "" {
				if _, err := time.LoadLocation(def.TZ); err != nil {
					return fmt.Errorf("validate: schedule for %q: bad timezone %q", def.Script, def.TZ)
				}
			}
		case def.IntervalSeconds > 0:
		default:
			return fmt.Errorf("validate: schedule for %q needs interval_seconds or cron", def.Script)
		}
	}

	for _, def := range f.FileTriggers {
		if !known[def.Script] {
			return fmt.Errorf("validate: file trigger references unknown script %q", def.Script)
		}
		if def.Path == "" {
			return fmt.Errorf("validate: file trigger for %q has empty path", def.Script)
		}
	}

	for _, def := range f.Webhooks {
		if def.Name == "" {
			return fmt.Errorf("validate: webhook with empty name")
		}
		if !known[def.Script] {
			return fmt.Errorf("validate: webhook %q references unknown script %q", def.Name, def.Script)
		}
	}
	return nil
}

func scheduleExists(schedules []store.Schedule, scriptID int64, def ScheduleDef) bool {
	for _, sch := range schedules {
		if sch.ScriptID != scriptID {
			continue
		}
		if def.Cron != "" {
			if sch.Cron == def.Cron && sch.TZ == def.TZ {
				return true
			}
			continue
		}
		if sch.IntervalSeconds != nil && *sch.IntervalSeconds == def.IntervalSeconds {
			return true
		}
	}
	return false
}

func fileTriggerExists(triggers []store.FileTrigger, scriptID int64, def FileTriggerDef) bool {
	for _, ft := range triggers {
		if ft.ScriptID == scriptID && ft.Path == def.Path && ft.Recursive == def.Recursive {
			return true
		}
	}
	return false
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
