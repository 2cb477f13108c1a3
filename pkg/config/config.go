package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	xdgAppName = "todoist-notion-sync"
	configFile = "config.yaml"
)

type Config struct {
	TodoistToken    string `mapstructure:"todoist_token" yaml:"todoist_token"`
	NotionToken     string `mapstructure:"notion_token" yaml:"notion_token"`
	TasksDatabaseID string `mapstructure:"tasks_database_id" yaml:"tasks_database_id"`
	TagsDatabaseID  string `mapstructure:"tags_database_id" yaml:"tags_database_id"`
	TagNameProperty string `mapstructure:"tag_name_property" yaml:"tag_name_property"`
	Timezone        string `mapstructure:"timezone" yaml:"timezone"`
	MappingFile     string `mapstructure:"mapping_file" yaml:"mapping_file"`
	StateDir        string `mapstructure:"state_dir" yaml:"state_dir"`
	PageSize        int    `mapstructure:"page_size" yaml:"page_size"`
	LogFile         string `mapstructure:"log_file" yaml:"log_file"`

	SourceIDProperty string `mapstructure:"source_id_property" yaml:"source_id_property"`
	SyncedProperty   string `mapstructure:"synced_property" yaml:"synced_property"`
	ParentProperty   string `mapstructure:"parent_property" yaml:"parent_property"`
	TitleProperty    string `mapstructure:"title_property" yaml:"title_property"`
	TaskURLTemplate  string `mapstructure:"task_url_template" yaml:"task_url_template"`
	BacklinkLabel    string `mapstructure:"backlink_label" yaml:"backlink_label"`

	ConvertMarkdownLinks bool `mapstructure:"convert_markdown_links" yaml:"convert_markdown_links"`
}

// env names used by existing deployments
var envBindings = map[string]string{
	"todoist_token":     "TODOIST_TOKEN",
	"notion_token":      "NOTION_TOKEN",
	"tasks_database_id": "MASTER_TASKS_DB_ID",
	"tags_database_id":  "MASTER_TAG_DB",
	"timezone":          "T_ZONE",
}

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func setDefaults(v *viper.Viper, stateDir string) {
	v.SetDefault("tag_name_property", "Todoist Tags")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("mapping_file", "mappings.json")
	v.SetDefault("state_dir", stateDir)
	v.SetDefault("page_size", 100)
	v.SetDefault("log_file", "")
	v.SetDefault("source_id_property", "SourceTaskId")
	v.SetDefault("synced_property", "Synced")
	v.SetDefault("parent_property", "Parent item")
	v.SetDefault("title_property", "Name")
	v.SetDefault("task_url_template", "https://todoist.com/showTask?id=%s")
	v.SetDefault("backlink_label", "Notion")
	v.SetDefault("convert_markdown_links", true)
	for _, key := range []string{"todoist_token", "notion_token", "tasks_database_id", "tags_database_id"} {
		v.SetDefault(key, "")
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error; environment variables and defaults
// still apply.
func Load(path string) (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(dir, configFile)
	}

	v := viper.New()
	setDefaults(v, dir)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !filepath.IsAbs(cfg.MappingFile) {
		// relative mapping files live next to the config file
		if _, err := os.Stat(cfg.MappingFile); err != nil {
			cfg.MappingFile = filepath.Join(filepath.Dir(path), cfg.MappingFile)
		}
	}
	return &cfg, nil
}

// Validate reports the first missing setting needed to sync.
func (c *Config) Validate() error {
	switch {
	case c.TodoistToken == "":
		return fmt.Errorf("todoist_token is not set (or TODOIST_TOKEN)")
	case c.NotionToken == "":
		return fmt.Errorf("notion_token is not set (or NOTION_TOKEN)")
	case c.TasksDatabaseID == "":
		return fmt.Errorf("tasks_database_id is not set (or MASTER_TASKS_DB_ID)")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes cfg to path, or to the default location when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range cfg.values() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}

func (c *Config) values() map[string]any {
	return map[string]any{
		"todoist_token":          c.TodoistToken,
		"notion_token":           c.NotionToken,
		"tasks_database_id":      c.TasksDatabaseID,
		"tags_database_id":       c.TagsDatabaseID,
		"tag_name_property":      c.TagNameProperty,
		"timezone":               c.Timezone,
		"mapping_file":           c.MappingFile,
		"state_dir":              c.StateDir,
		"page_size":              c.PageSize,
		"log_file":               c.LogFile,
		"source_id_property":     c.SourceIDProperty,
		"synced_property":        c.SyncedProperty,
		"parent_property":        c.ParentProperty,
		"title_property":         c.TitleProperty,
		"task_url_template":      c.TaskURLTemplate,
		"backlink_label":         c.BacklinkLabel,
		"convert_markdown_links": c.ConvertMarkdownLinks,
	}
}
