package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/models"
)

// RuleService manages compliance rules and their checks, including YAML rule
// pack import.
type RuleService struct {
	DB *gorm.DB
}

func NewRuleService(db *gorm.DB) *RuleService {
	return &RuleService{DB: db}
}

func (s *RuleService) List() ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Preload("Checks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("name ASC").Find(&rules).Error
	return rules, err
}

func (s *RuleService) Get(id string) (*models.Rule, error) {
	var rule models.Rule
	err := s.DB.Preload("Checks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&rule, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *RuleService) Create(rule *models.Rule) error {
	if err := validateChecks(rule.Checks); err != nil {
		return err
	}
	for i := range rule.Checks {
		rule.Checks[i].Position = i
	}
	return s.DB.Create(rule).Error
}

// Update replaces the rule's checks wholesale; partial check edits would
// reorder positions unpredictably.
func (s *RuleService) Update(rule *models.Rule) error {
	if err := validateChecks(rule.Checks); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Check{}, "rule_id = ?", rule.ID).Error; err != nil {
			return err
		}
		for i := range rule.Checks {
			rule.Checks[i].ID = ""
			rule.Checks[i].RuleID = rule.ID
			rule.Checks[i].Position = i
		}
		return tx.Save(rule).Error
	})
}

func (s *RuleService) Delete(id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Check{}, "rule_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Rule{}, "id = ?", id).Error
	})
}

func validateChecks(checks []models.Check) error {
	for _, chk := range checks {
		switch chk.Query {
		case models.QueryStructured:
			if chk.Path == "" {
				return fmt.Errorf("check %q: structured checks need a path", chk.Name)
			}
		case models.QuerySubtree:
		default:
			return fmt.Errorf("check %q: unknown query style %q", chk.Name, chk.Query)
		}
		switch chk.Match {
		case models.MatchExists, models.MatchEquals, models.MatchPattern:
		default:
			return fmt.Errorf("check %q: unknown match type %q", chk.Name, chk.Match)
		}
	}
	return nil
}

// YAML rule pack import.

type rulePack struct {
	Rules []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Checks      []struct {
			Name        string         `yaml:"name"`
			Query       string         `yaml:"query"`
			Path        string         `yaml:"path"`
			Filter      map[string]any `yaml:"filter"`
			Subtree     string         `yaml:"subtree"`
			Match       string         `yaml:"match"`
			Expected    any            `yaml:"expected"`
			Remediation any            `yaml:"remediation"`
		} `yaml:"checks"`
	} `yaml:"rules"`
}

// ImportYAML loads a rule pack, upserting rules by name. An existing rule's
// checks are replaced, not merged.
func (s *RuleService) ImportYAML(data []byte) ([]models.Rule, error) {
	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	if len(pack.Rules) == 0 {
		return nil, fmt.Errorf("rule pack contains no rules")
	}

	var imported []models.Rule
	for _, rr := range pack.Rules {
		rule := models.Rule{
			Name:        rr.Name,
			Description: rr.Description,
			Enabled:     true,
		}
		for i, rc := range rr.Checks {
			filter := ""
			if rc.Filter != nil {
				b, err := json.Marshal(rc.Filter)
				if err != nil {
					return nil, fmt.Errorf("rule %q check %q: encode filter: %w", rr.Name, rc.Name, err)
				}
				filter = string(b)
			}
			rule.Checks = append(rule.Checks, models.Check{
				Name:        rc.Name,
				Position:    i,
				Query:       rc.Query,
				Path:        rc.Path,
				Filter:      filter,
				Subtree:     rc.Subtree,
				Match:       rc.Match,
				Expected:    stringify(rc.Expected),
				Remediation: stringify(rc.Remediation),
			})
		}
		if err := validateChecks(rule.Checks); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rr.Name, err)
		}

		var existing models.Rule
		err := s.DB.First(&existing, "name = ?", rule.Name).Error
		switch {
		case err == nil:
			rule.ID = existing.ID
			if err := s.Update(&rule); err != nil {
				return nil, fmt.Errorf("update rule %q: %w", rule.Name, err)
			}
		default:
			if err := s.Create(&rule); err != nil {
				return nil, fmt.Errorf("create rule %q: %w", rule.Name, err)
			}
		}
		imported = append(imported, rule)
	}
	return imported, nil
}

// stringify renders a YAML node as the stored text form: scalars verbatim,
// structures as JSON.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
