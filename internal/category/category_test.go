package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStructure = `
competition: SV-COMP
year: 2026
participants:
  verifone:
    labels: []
    url: https://example.org/verifone
  portfolion:
    labels: [meta_tool]
  oldtimer:
    labels: [inactive]
verifiers: [oldtimer, portfolion, verifone]
validators:
  - checkmate-validate-violation-witnesses-2.0
  - witnesslint-validate-violation-witnesses-2.0
categories:
  ReachSafety:
    categories:
      - unreach-call.ReachSafety-Arrays
      - unreach-call.ReachSafety-Loops
    verifiers: [portfolion, verifone]
    validators: [checkmate-validate-violation-witnesses-2.0]
  ValidationCrafted:
    categories: [unreach-call.ValidationCrafted-Main]
    verifiers: []
    validators: [checkmate-validate-violation-witnesses-2.0]
opt_out:
  verifone: [ReachSafety]
categories_process_order:
  - unreach-call.ReachSafety-Arrays
  - unreach-call.ReachSafety-Loops
  - unreach-call.ValidationCrafted-Main
  - ReachSafety
categories_table_order:
  - ReachSafety
  - unreach-call.ReachSafety-Arrays
  - unreach-call.ReachSafety-Loops
validation_only: [ValidationCrafted]
demo_categories: [unreach-call.ReachSafety-Loops]
invalid_tasks:
  verification:
    - bogus.yml
`

func loadSample(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := Parse([]byte(sampleStructure), "sample")
	require.NoError(t, err)
	return catalog
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(sampleStructure+"\nsurprise: true\n"), "sample")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surprise")
}

func TestParseRejectsMissingRequiredKeys(t *testing.T) {
	_, err := Parse([]byte("competition: SV-COMP\nyear: 2026\n"), "sample")
	assert.Error(t, err)
}

func TestCompetitionWithYear(t *testing.T) {
	assert.Equal(t, "SV-COMP26", loadSample(t).CompetitionWithYear())
}

func TestHorsConcours(t *testing.T) {
	catalog := loadSample(t)
	assert.True(t, catalog.IsHorsConcours("portfolion"))
	assert.True(t, catalog.IsHorsConcours("oldtimer"))
	assert.False(t, catalog.IsHorsConcours("verifone"))
	assert.False(t, catalog.IsHorsConcours("never-heard-of"))
}

func TestOptedOut(t *testing.T) {
	catalog := loadSample(t)
	assert.True(t, catalog.OptedOut("verifone", "ReachSafety"))
	assert.False(t, catalog.OptedOut("verifone", "unreach-call.ReachSafety-Arrays"))
	assert.False(t, catalog.OptedOut("portfolion", "ReachSafety"))
}

func TestValidationOnlyFiltering(t *testing.T) {
	catalog := loadSample(t)

	assert.Equal(t, []string{
		"unreach-call.ReachSafety-Arrays",
		"unreach-call.ReachSafety-Loops",
		"ReachSafety",
	}, catalog.ProcessOrder())

	metas := catalog.MetaCategories()
	assert.Contains(t, metas, "ReachSafety")
	assert.NotContains(t, metas, "ValidationCrafted")
}

func TestBaseCategories(t *testing.T) {
	assert.Equal(t, []string{
		"unreach-call.ReachSafety-Arrays",
		"unreach-call.ReachSafety-Loops",
	}, loadSample(t).BaseCategories())
}

func TestMetaChildren(t *testing.T) {
	catalog := loadSample(t)
	assert.Equal(t, []string{
		"unreach-call.ReachSafety-Arrays",
		"unreach-call.ReachSafety-Loops",
	}, catalog.MetaChildren("ReachSafety"))
	assert.Empty(t, catalog.MetaChildren("unreach-call.ReachSafety-Arrays"))
}

func TestValidationTrackViews(t *testing.T) {
	catalog := loadSample(t)

	assert.Equal(t, []string{
		"unreach-call.ReachSafety-Arrays",
		"unreach-call.ReachSafety-Loops",
		"unreach-call.ValidationCrafted-Main",
		"ReachSafety",
	}, catalog.ValidationProcessOrder())

	assert.Equal(t, []string{
		"unreach-call.ReachSafety-Arrays",
		"unreach-call.ReachSafety-Loops",
		"unreach-call.ValidationCrafted-Main",
	}, catalog.ValidationBaseCategories())

	assert.Equal(t,
		[]string{"unreach-call.ValidationCrafted-Main"},
		catalog.ValidationMetaChildren("ValidationCrafted"))
	assert.Empty(t, catalog.MetaChildren("ValidationCrafted"))
}

func TestValidatorsWithoutLinters(t *testing.T) {
	assert.Equal(t,
		[]string{"checkmate-validate-violation-witnesses-2.0"},
		loadSample(t).ValidatorsWithoutLinters())
}

func TestInvalidTasks(t *testing.T) {
	catalog := loadSample(t)
	assert.Equal(t, map[string]bool{"bogus.yml": true}, catalog.InvalidTasks("verification"))
	assert.Nil(t, catalog.InvalidTasks("validation"))
}

func TestIsDemo(t *testing.T) {
	catalog := loadSample(t)
	assert.True(t, catalog.IsDemo("unreach-call.ReachSafety-Loops"))
	assert.False(t, catalog.IsDemo("ReachSafety"))
}
