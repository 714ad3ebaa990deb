package config

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

const seedSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "clients": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id":            {"type": "string", "minLength": 1},
          "name":          {"type": "string", "minLength": 1},
          "creditBalance": {"type": "integer", "minimum": 0}
        }
      }
    },
    "automations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id":                  {"type": "string", "minLength": 1},
          "name":                {"type": "string", "minLength": 1},
          "description":         {"type": "string"},
          "webhookUrl":          {"type": "string"},
          "creditsPerExecution": {"type": "integer", "minimum": 0},
          "auth": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type":        {"enum": ["none", "bearer", "basic", "header"]},
              "credentials": {"type": "object", "additionalProperties": {"type": "string"}}
            }
          }
        }
      }
    },
    "assignments": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["clientId", "automationId"],
        "properties": {
          "clientId":            {"type": "string", "minLength": 1},
          "automationId":        {"type": "string", "minLength": 1},
          "active":              {"type": "boolean"},
          "creditsPerExecution": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// SeedFile is the layout of a ledger seed file.
type SeedFile struct {
	Clients     []SeedClient     `yaml:"clients"`
	Automations []SeedAutomation `yaml:"automations"`
	Assignments []SeedAssignment `yaml:"assignments"`
}

type SeedClient struct {
	ID            models.ClientID `yaml:"id"`
	Name          string          `yaml:"name"`
	CreditBalance int64           `yaml:"creditBalance"`
}

type SeedAutomation struct {
	ID                  models.AutomationID `yaml:"id"`
	Name                string              `yaml:"name"`
	Description         string              `yaml:"description"`
	WebhookURL          string              `yaml:"webhookUrl"`
	CreditsPerExecution int64               `yaml:"creditsPerExecution"`
	Auth                *SeedAuth           `yaml:"auth"`
}

type SeedAuth struct {
	Type        models.AuthType   `yaml:"type"`
	Credentials map[string]string `yaml:"credentials"`
}

// SeedAssignment falls back to the automation's default cost when
// CreditsPerExecution is omitted, and is active unless Active is false.
type SeedAssignment struct {
	ClientID            models.ClientID     `yaml:"clientId"`
	AutomationID        models.AutomationID `yaml:"automationId"`
	Active              *bool               `yaml:"active"`
	CreditsPerExecution *int64              `yaml:"creditsPerExecution"`
}

// SeedSummary counts what ApplySeed wrote.
type SeedSummary struct {
	Clients     int
	Automations int
	Assignments int
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*SeedFile, error) {
	var file SeedFile
	if err := readYAML(path, seedSchema, &file); err != nil {
		return nil, err
	}

	return &file, nil
}

// ApplySeed upserts every record of the seed file into store. Assignments may
// only reference automations declared in the same file or already stored.
func ApplySeed(ctx context.Context, store persistence.Persistence, seed *SeedFile) (SeedSummary, error) {
	var summary SeedSummary

	validate := validator.New(validator.WithRequiredStructEnabled())
	now := time.Now().UTC()

	for _, c := range seed.Clients {
		client := &models.Client{
			ID:            c.ID,
			Name:          c.Name,
			CreditBalance: c.CreditBalance,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := validate.Struct(client); err != nil {
			return summary, fmt.Errorf("invalid client %s: %w", c.ID, err)
		}

		if err := store.ClientRepository().Save(ctx, client); err != nil {
			return summary, fmt.Errorf("failed to seed client %s: %w", c.ID, err)
		}

		summary.Clients++
	}

	for _, a := range seed.Automations {
		automation := &models.Automation{
			ID:                  a.ID,
			Name:                a.Name,
			Description:         a.Description,
			WebhookURL:          a.WebhookURL,
			CreditsPerExecution: a.CreditsPerExecution,
		}

		if a.Auth != nil {
			automation.Auth = &models.AuthDescriptor{Type: a.Auth.Type, Credentials: a.Auth.Credentials}
		}

		if err := validate.Struct(automation); err != nil {
			return summary, fmt.Errorf("invalid automation %s: %w", a.ID, err)
		}

		if err := store.AutomationRepository().Save(ctx, automation); err != nil {
			return summary, fmt.Errorf("failed to seed automation %s: %w", a.ID, err)
		}

		summary.Automations++
	}

	for _, a := range seed.Assignments {
		assignment := &models.Assignment{
			ClientID:     a.ClientID,
			AutomationID: a.AutomationID,
			IsActive:     a.Active == nil || *a.Active,
		}

		if a.CreditsPerExecution != nil {
			assignment.CreditsPerExecution = *a.CreditsPerExecution
		} else {
			automation, err := store.AutomationRepository().GetByID(ctx, a.AutomationID)
			if err != nil {
				return summary, fmt.Errorf("assignment %s/%s: %w", a.ClientID, a.AutomationID, err)
			}

			assignment.CreditsPerExecution = automation.CreditsPerExecution
		}

		if err := validate.Struct(assignment); err != nil {
			return summary, fmt.Errorf("invalid assignment %s/%s: %w", a.ClientID, a.AutomationID, err)
		}

		if err := store.AssignmentRepository().Save(ctx, assignment); err != nil {
			return summary, fmt.Errorf("failed to seed assignment %s/%s: %w", a.ClientID, a.AutomationID, err)
		}

		summary.Assignments++
	}

	return summary, nil
}
