package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/models"
)

func TestRuleService_CreateAssignsPositions(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	rule := models.Rule{
		Name: "ssh hardening",
		Checks: []models.Check{
			{Name: "first", Query: models.QueryStructured, Path: "/ssh", Match: models.MatchExists},
			{Name: "second", Query: models.QueryStructured, Path: "/ssh/version", Match: models.MatchEquals, Expected: "2"},
		},
	}
	require.NoError(t, svc.Create(&rule))

	loaded, err := svc.Get(rule.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Checks, 2)
	assert.Equal(t, 0, loaded.Checks[0].Position)
	assert.Equal(t, "first", loaded.Checks[0].Name)
	assert.Equal(t, 1, loaded.Checks[1].Position)
}

func TestRuleService_CreateValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	err := svc.Create(&models.Rule{
		Name:   "bad",
		Checks: []models.Check{{Name: "no path", Query: models.QueryStructured, Match: models.MatchExists}},
	})
	assert.Error(t, err)

	err = svc.Create(&models.Rule{
		Name:   "bad match",
		Checks: []models.Check{{Name: "x", Query: models.QuerySubtree, Match: "approximately"}},
	})
	assert.Error(t, err)
}

func TestRuleService_UpdateReplacesChecks(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	rule := models.Rule{
		Name:   "banner",
		Checks: []models.Check{{Name: "old", Query: models.QueryStructured, Path: "/banner", Match: models.MatchExists}},
	}
	require.NoError(t, svc.Create(&rule))

	rule.Checks = []models.Check{
		{Name: "new-a", Query: models.QueryStructured, Path: "/banner/motd", Match: models.MatchPattern, Expected: "Authorized"},
		{Name: "new-b", Query: models.QueryStructured, Path: "/banner/login", Match: models.MatchExists},
	}
	require.NoError(t, svc.Update(&rule))

	loaded, err := svc.Get(rule.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Checks, 2)
	assert.Equal(t, "new-a", loaded.Checks[0].Name)

	var orphans int64
	db.Model(&models.Check{}).Where("name = ?", "old").Count(&orphans)
	assert.Zero(t, orphans)
}

func TestRuleService_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	rule := models.Rule{
		Name:   "to delete",
		Checks: []models.Check{{Name: "c", Query: models.QuerySubtree, Match: models.MatchExists}},
	}
	require.NoError(t, svc.Create(&rule))
	require.NoError(t, svc.Delete(rule.ID))

	var checks int64
	db.Model(&models.Check{}).Where("rule_id = ?", rule.ID).Count(&checks)
	assert.Zero(t, checks)
}

const testRulePack = `
rules:
  - name: bgp baseline
    description: BGP must run the corporate AS
    checks:
      - name: bgp AS configured
        query: structured
        path: /bgp
        filter:
          as-number: {}
        match: equals
        expected:
          as-number: 65000
        remediation:
          bgp:
            as-number: 65000
  - name: ssh enabled
    checks:
      - name: ssh service present
        query: subtree
        subtree: <system><services><ssh/></services></system>
        match: exists
`

func TestRuleService_ImportYAML(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	imported, err := svc.ImportYAML([]byte(testRulePack))
	require.NoError(t, err)
	require.Len(t, imported, 2)

	rules, err := svc.List()
	require.NoError(t, err)
	require.Len(t, rules, 2)

	var bgp models.Rule
	for _, r := range rules {
		if r.Name == "bgp baseline" {
			bgp = r
		}
	}
	require.Len(t, bgp.Checks, 1)
	chk := bgp.Checks[0]
	assert.Equal(t, models.QueryStructured, chk.Query)
	assert.JSONEq(t, `{"as-number": {}}`, chk.Filter)
	assert.JSONEq(t, `{"as-number": 65000}`, chk.Expected)
	assert.JSONEq(t, `{"bgp": {"as-number": 65000}}`, chk.Remediation)
}

func TestRuleService_ImportYAML_UpsertsByName(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	_, err := svc.ImportYAML([]byte(testRulePack))
	require.NoError(t, err)
	_, err = svc.ImportYAML([]byte(testRulePack))
	require.NoError(t, err)

	rules, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	for _, r := range rules {
		assert.Len(t, r.Checks, 1)
	}
}

func TestRuleService_ImportYAML_Invalid(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRuleService(db)

	_, err := svc.ImportYAML([]byte("rules: []"))
	assert.Error(t, err)

	_, err = svc.ImportYAML([]byte("[unclosed"))
	assert.Error(t, err)

	bad := `
rules:
  - name: broken
    checks:
      - name: no path
        query: structured
        match: exists
`
	_, err = svc.ImportYAML([]byte(bad))
	assert.Error(t, err)
}
