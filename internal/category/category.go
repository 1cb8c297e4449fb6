// Package category loads the competition's category-structure document:
// which base categories exist, how meta categories compose them, who
// participates where, and who opted out. The document is validated
// against an embedded JSON Schema before decoding.
package category

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/fmbench/scoretab/internal/results"
)

//go:embed schema.json
var structureSchemaJSON string

// defaultPrinter formats schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// structureSchema is the compiled JSON Schema for category-structure files.
var structureSchema *jsonschema.Schema

func init() {
	structureSchema = mustCompileSchema(structureSchemaJSON, "category-structure.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// Labels that mark a participant as competing outside the rankings.
var horsConcoursLabels = map[string]bool{"inactive": true, "meta_tool": true}

// Participant is one entry of the participants map.
type Participant struct {
	Labels []string `yaml:"labels"`
	URL    string   `yaml:"url"`
}

// MetaCategory composes base categories (or other meta categories) and
// names the tools competing in it.
type MetaCategory struct {
	Categories []string `yaml:"categories"`
	Verifiers  []string `yaml:"verifiers"`
	Validators []string `yaml:"validators"`
}

// Structure mirrors the category-structure YAML document.
type Structure struct {
	Competition            string                  `yaml:"competition"`
	Year                   int                     `yaml:"year"`
	Participants           map[string]Participant  `yaml:"participants"`
	Verifiers              []string                `yaml:"verifiers"`
	Validators             []string                `yaml:"validators"`
	Categories             map[string]MetaCategory `yaml:"categories"`
	OptOut                 map[string][]string     `yaml:"opt_out"`
	OptIn                  map[string][]string     `yaml:"opt_in"`
	NotParticipating       []string                `yaml:"not_participating"`
	CategoriesProcessOrder []string                `yaml:"categories_process_order"`
	CategoriesTableOrder   []string                `yaml:"categories_table_order"`
	ValidationOnly         []string                `yaml:"validation_only"`
	DemoCategories         []string                `yaml:"demo_categories"`
	InvalidTasks           map[string][]string     `yaml:"invalid_tasks"`
}

// Load reads, validates, and decodes a category-structure file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category structure: %w", err)
	}
	return Parse(data, path)
}

// Parse validates and decodes raw category-structure YAML.
func Parse(data []byte, source string) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}
	if errs := validateAgainstSchema(structureSchema, convertToJSONCompatible(doc)); len(errs) > 0 {
		return nil, fmt.Errorf("category structure %s is invalid:\n  %s",
			source, strings.Join(errs, "\n  "))
	}

	var structure Structure
	if err := yaml.Unmarshal(data, &structure); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}
	return &Catalog{structure: structure}, nil
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible rewrites YAML-decoded values into the value
// kinds the schema validator understands.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}

// Catalog answers structural questions about the competition. It is
// immutable after Load and safe for concurrent use.
type Catalog struct {
	structure Structure
}

func (c *Catalog) Competition() string { return c.structure.Competition }
func (c *Catalog) Year() int           { return c.structure.Year }

// CompetitionWithYear returns e.g. "SV-COMP26", the prefix used in
// result-file names.
func (c *Catalog) CompetitionWithYear() string {
	return fmt.Sprintf("%s%02d", c.structure.Competition, c.structure.Year%100)
}

// Verifiers returns all participating verification tools.
func (c *Catalog) Verifiers() []string { return c.structure.Verifiers }

// Validators returns all validation tools, including witness linters.
func (c *Catalog) Validators() []string { return c.structure.Validators }

// ValidatorsWithoutLinters filters the witness linters out of the
// validator list.
func (c *Catalog) ValidatorsWithoutLinters() []string {
	var out []string
	for _, v := range c.structure.Validators {
		if !strings.HasPrefix(v, results.LinterTool) {
			out = append(out, v)
		}
	}
	return out
}

// IsHorsConcours reports whether the tool competes outside the rankings.
func (c *Catalog) IsHorsConcours(tool string) bool {
	for _, label := range c.structure.Participants[tool].Labels {
		if horsConcoursLabels[label] {
			return true
		}
	}
	return false
}

// OptedOut reports whether the tool opted out of having its results shown
// for the category. Opt-out dominates opt-in.
func (c *Catalog) OptedOut(tool, categoryName string) bool {
	for _, cat := range c.structure.OptOut[tool] {
		if cat == categoryName {
			return true
		}
	}
	return false
}

// validationOnly reports whether the name belongs to a category that
// exists only in the validation track. Matching is by substring, so one
// entry covers both a meta category and its base categories.
func (c *Catalog) validationOnly(name string) bool {
	for _, v := range c.structure.ValidationOnly {
		if strings.Contains(name, v) {
			return true
		}
	}
	return false
}

// MetaCategories returns the meta categories of the verification track.
func (c *Catalog) MetaCategories() map[string]MetaCategory {
	out := map[string]MetaCategory{}
	for name, meta := range c.structure.Categories {
		if !c.validationOnly(name) {
			out[name] = meta
		}
	}
	return out
}

// IsMeta reports whether the name denotes a meta category.
func (c *Catalog) IsMeta(name string) bool {
	_, ok := c.structure.Categories[name]
	return ok
}

// MetaChildren returns the sub-categories a meta category is composed of
// in the verification track.
func (c *Catalog) MetaChildren(name string) []string {
	return c.filterValidationOnly(c.structure.Categories[name].Categories)
}

// ValidationMetaChildren returns all sub-categories of a meta category,
// including the validation-only ones.
func (c *Catalog) ValidationMetaChildren(name string) []string {
	return c.structure.Categories[name].Categories
}

// MetaVerifiers returns the verifiers competing in a meta category.
func (c *Catalog) MetaVerifiers(name string) []string {
	return c.structure.Categories[name].Verifiers
}

// ProcessOrder returns all category names in dependency order, base
// categories before the meta categories built from them.
func (c *Catalog) ProcessOrder() []string {
	return c.filterValidationOnly(c.structure.CategoriesProcessOrder)
}

// TableOrder returns all category names in presentation order.
func (c *Catalog) TableOrder() []string {
	return c.filterValidationOnly(c.structure.CategoriesTableOrder)
}

// ValidationProcessOrder returns all category names of the validation
// track in dependency order, including the validation-only ones.
func (c *Catalog) ValidationProcessOrder() []string {
	return c.structure.CategoriesProcessOrder
}

// ValidationTableOrder returns all category names of the validation track
// in presentation order.
func (c *Catalog) ValidationTableOrder() []string {
	return c.structure.CategoriesTableOrder
}

// ValidationBaseCategories returns the validation-track process-order
// entries that are not meta categories.
func (c *Catalog) ValidationBaseCategories() []string {
	var out []string
	for _, name := range c.ValidationProcessOrder() {
		if !c.IsMeta(name) {
			out = append(out, name)
		}
	}
	return out
}

func (c *Catalog) filterValidationOnly(names []string) []string {
	var out []string
	for _, name := range names {
		if !c.validationOnly(name) {
			out = append(out, name)
		}
	}
	return out
}

// BaseCategories returns the process-order entries that are not meta
// categories.
func (c *Catalog) BaseCategories() []string {
	var out []string
	for _, name := range c.ProcessOrder() {
		if !c.IsMeta(name) {
			out = append(out, name)
		}
	}
	return out
}

// IsDemo reports whether the category runs outside the competition.
func (c *Catalog) IsDemo(name string) bool {
	for _, d := range c.structure.DemoCategories {
		if d == name {
			return true
		}
	}
	return false
}

// InvalidTasks returns the banned tasks of one track as a lookup set.
func (c *Catalog) InvalidTasks(track string) map[string]bool {
	tasks := c.structure.InvalidTasks[track]
	if len(tasks) == 0 {
		return nil
	}
	out := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		out[t] = true
	}
	return out
}
