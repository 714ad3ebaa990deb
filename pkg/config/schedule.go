package config

import (
	"fmt"

	"github.com/dukex/creditflow/pkg/models"
)

const scheduleSchema = `{
  "type": "object",
  "required": ["schedules"],
  "properties": {
    "schedules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "cron", "clientId", "automationId"],
        "additionalProperties": false,
        "properties": {
          "id":           {"type": "string", "minLength": 1},
          "cron":         {"type": "string", "minLength": 1},
          "clientId":     {"type": "string", "minLength": 1},
          "automationId": {"type": "string", "minLength": 1},
          "enabled":      {"type": "boolean"},
          "payload":      {"type": "object"}
        }
      }
    }
  }
}`

// ScheduleFile is the layout of schedules.yaml.
type ScheduleFile struct {
	Schedules []ScheduleEntry `yaml:"schedules"`
}

// ScheduleEntry dispatches an automation for a client on a cron schedule.
type ScheduleEntry struct {
	ID           string              `yaml:"id"`
	Cron         string              `yaml:"cron"`
	ClientID     models.ClientID     `yaml:"clientId"`
	AutomationID models.AutomationID `yaml:"automationId"`
	Enabled      *bool               `yaml:"enabled"`
	Payload      map[string]any      `yaml:"payload"`
}

// IsEnabled defaults to true when the entry does not say otherwise.
func (e ScheduleEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// LoadSchedules reads and validates a schedules file. Entry ids must be unique.
func LoadSchedules(path string) ([]ScheduleEntry, error) {
	var file ScheduleFile
	if err := readYAML(path, scheduleSchema, &file); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(file.Schedules))
	for _, entry := range file.Schedules {
		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate schedule id %q", entry.ID)
		}

		seen[entry.ID] = true
	}

	return file.Schedules, nil
}
