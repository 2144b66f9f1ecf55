package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ijro/internal/domain"
)

// Config models ijro.yml: the district identity plus the static role tables
// the permission authority reads. Permissions are data, not code, so the full
// matrix stays inspectable.
type Config struct {
	District struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"district"`
	Roles      map[domain.Role]RoleSpec `yaml:"roles"`
	Priorities map[domain.Priority]struct {
		DeadlineDays int `yaml:"deadline_days"`
	} `yaml:"priorities"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type RoleSpec struct {
	Description string              `yaml:"description"`
	Permissions []string            `yaml:"permissions"`
	CanCreate   []domain.Role       `yaml:"can_create"`
	TaskActions []domain.TaskAction `yaml:"task_actions"`
}

// WebhookConfig describes an outbound notification sink fed from the audit
// log by the dispatcher.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Actions        []string `yaml:"actions,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// PermissionAdminAll is the wildcard permission.
const PermissionAdminAll = "admin_all"

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with ijro config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the role tables are closed and internally consistent.
func (c *Config) Validate() error {
	if c.District.ID == "" {
		return fmt.Errorf("config.district.id is required")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	admin, ok := c.Roles[domain.RoleAdmin]
	if !ok {
		return fmt.Errorf("config.roles must include admin")
	}
	adminWildcard := false
	for _, p := range admin.Permissions {
		if p == PermissionAdminAll {
			adminWildcard = true
		}
	}
	if !adminWildcard {
		return fmt.Errorf("admin role must hold %s", PermissionAdminAll)
	}
	for roleID, spec := range c.Roles {
		if !domain.ValidRole(roleID) {
			return fmt.Errorf("config.roles contains unknown role %s", roleID)
		}
		for _, p := range spec.Permissions {
			if p == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
		for _, target := range spec.CanCreate {
			if !domain.ValidRole(target) {
				return fmt.Errorf("role %s can_create references unknown role %s", roleID, target)
			}
		}
		for _, action := range spec.TaskActions {
			if !domain.ValidTaskAction(action) {
				return fmt.Errorf("role %s has unknown task action %s", roleID, action)
			}
		}
	}
	if len(c.Priorities) == 0 {
		return fmt.Errorf("config.priorities is required")
	}
	for _, p := range []domain.Priority{
		domain.PriorityUrgentImportant, domain.PriorityImportant,
		domain.PriorityNotUrgent, domain.PriorityRoutine,
	} {
		entry, ok := c.Priorities[p]
		if !ok {
			return fmt.Errorf("config.priorities missing %s", p)
		}
		if entry.DeadlineDays <= 0 {
			return fmt.Errorf("priority %s needs deadline_days > 0", p)
		}
	}
	for p := range c.Priorities {
		if !domain.ValidPriority(p) {
			return fmt.Errorf("config.priorities contains unknown priority %s", p)
		}
	}
	return nil
}

// DeadlineDays returns the default deadline offset for a priority.
func (c *Config) DeadlineDays(p domain.Priority) (int, bool) {
	entry, ok := c.Priorities[p]
	if !ok {
		return 0, false
	}
	return entry.DeadlineDays, true
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ijro.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(districtID string) string {
	return fmt.Sprintf(defaultTemplate, districtID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a district.
func Default(districtID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, districtID))).Decode(&cfg)
	cfg.District.ID = districtID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML serializes the config back to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `district:
  id: %s
  name: District hokimiyat

roles:
  admin:
    description: "System administrator"
    permissions: [admin_all]
    can_create: [admin, district_head, district_officer, org_head, org_officer]
    task_actions: [create, update, close, reassign, accept, submit_report]

  district_head:
    description: "Hokim: heads the district administration"
    permissions: [view_analytics, manage_users, manage_orgs, manage_settings, view_audit]
    can_create: [district_officer, org_head, org_officer]
    task_actions: [create, update, close, reassign]

  district_officer:
    description: "Hokimiyat department officer"
    permissions: [view_analytics, manage_users]
    can_create: [org_head, org_officer]
    task_actions: [create, update, reassign]

  org_head:
    description: "Head of a subordinate organization"
    permissions: [view_analytics]
    can_create: [org_officer]
    task_actions: [accept, submit_report]

  org_officer:
    description: "Organization staff member"
    permissions: []
    can_create: []
    task_actions: [accept, submit_report]

priorities:
  urgent_important:
    deadline_days: 1
  important:
    deadline_days: 3
  not_urgent:
    deadline_days: 5
  routine:
    deadline_days: 7
`
