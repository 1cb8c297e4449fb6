package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/klauspost/compress/zstd"
)

// Loader reads one result file into a RunSet. The file format is an
// external collaborator; engines depend only on this interface.
type Loader interface {
	Load(path string) (*RunSet, error)
}

// FileLoader reads the JSON result-file layout, transparently
// decompressing *.zst files.
type FileLoader struct{}

// runSetDocument mirrors the on-disk layout of a result file.
type runSetDocument struct {
	Tool    string           `json:"tool"`
	Name    string           `json:"name"`
	Records []recordDocument `json:"records"`
}

type recordDocument struct {
	Task            string         `json:"task"`
	Property        string         `json:"property,omitempty"`
	ExpectedVerdict string         `json:"expected_verdict,omitempty"`
	Status          string         `json:"status"`
	Category        string         `json:"category"`
	WitnessCategory string         `json:"witness_category,omitempty"`
	Columns         map[string]any `json:"columns,omitempty"`
}

// columnValues is the intermediate shape decoded from a record's free-form
// column map. Everything arrives as text; typed parsing happens afterwards
// so that a malformed value degrades to a per-record parse note instead of
// failing the whole file.
type columnValues struct {
	CPUTime         string `mapstructure:"cputime"`
	CPUEnergy       string `mapstructure:"cpuenergy"`
	Memory          string `mapstructure:"memory"`
	Score           string `mapstructure:"score"`
	BranchesCovered string `mapstructure:"branches_covered"`
	WitnessType     string `mapstructure:"witnesslint-witness-type"`
	WitnessFile     string `mapstructure:"witnesslint-witness-file"`
}

func (FileLoader) Load(path string) (*RunSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream of %s: %w", path, err)
		}
		defer zr.Close()
		reader = zr
	}

	var doc runSetDocument
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding result file %s: %w", path, err)
	}

	set := NewRunSet(doc.Tool, doc.Name)
	set.SourceFile = path
	for i := range doc.Records {
		rec, err := buildRecord(&doc.Records[i])
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, path, err)
		}
		if err := set.Append(rec); err != nil {
			return nil, fmt.Errorf("result file %s: %w", path, err)
		}
	}
	return set, nil
}

func buildRecord(doc *recordDocument) (*Record, error) {
	cat := Category(doc.Category)
	if doc.Category == "" {
		cat = CategoryMissing
	} else if !cat.Valid() {
		return nil, fmt.Errorf("unknown category %q for task %q", doc.Category, doc.Task)
	}

	rec := &Record{
		Task:            doc.Task,
		Property:        doc.Property,
		Expected:        doc.ExpectedVerdict,
		Status:          doc.Status,
		Category:        cat,
		WitnessCategory: doc.WitnessCategory,
	}

	cols, err := decodeColumns(doc.Columns)
	if err != nil {
		return nil, fmt.Errorf("columns of task %q: %w", doc.Task, err)
	}
	rec.Columns = cols
	return rec, nil
}

func decodeColumns(raw map[string]any) (Columns, error) {
	var cols Columns
	if len(raw) == 0 {
		return cols, nil
	}

	var vals columnValues
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vals,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cols, err
	}
	if err := dec.Decode(raw); err != nil {
		return cols, err
	}

	cols.Raw = make(map[string]string, len(raw))
	for k, v := range raw {
		cols.Raw[k] = fmt.Sprint(v)
	}
	cols.WitnessType = vals.WitnessType
	cols.WitnessFile = vals.WitnessFile
	if vals.BranchesCovered != "" {
		cols.BranchesCovered = Some(vals.BranchesCovered)
	}

	cols.CPUTime = parseMeasure("cputime", vals.CPUTime, &cols)
	cols.CPUEnergy = parseMeasure("cpuenergy", vals.CPUEnergy, &cols)
	cols.Memory = parseMeasure("memory", vals.Memory, &cols)
	cols.Score = parseMeasure("score", vals.Score, &cols)
	return cols, nil
}

// parseMeasure parses a numeric column value, tolerating a trailing unit
// suffix such as "8.59s" or "512MB". An empty value is an absent column;
// an unparseable one is recorded and treated as absent.
func parseMeasure(name, value string, cols *Columns) Optional[float64] {
	if value == "" {
		return None[float64]()
	}
	trimmed := strings.TrimRightFunc(value, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		cols.ParseErrs = append(cols.ParseErrs, fmt.Sprintf("%s: unparseable value %q", name, value))
		return None[float64]()
	}
	return Some(f)
}

// resultFileRe matches result-file names of the form
// <tool>.<date>_<time>.results.<competition>_<category>[.fixed].json[.zst]
// The tool name may itself contain dots (validator names carry a witness
// version, e.g. "-witnesses-2.0-"), so it is matched lazily up to the
// timestamp.
var resultFileRe = regexp.MustCompile(
	`^(?P<tool>.+?)\.(?P<date>\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})\.results\.(?P<competition>[^._]+)(?:_(?P<category>[^.]+))?(?P<fixed>\.fixed)?\.json(?:\.zst)?$`)

// FileMeta is the metadata encoded in a result-file name.
type FileMeta struct {
	Tool        string
	Date        string
	Competition string
	Category    string
	Fixed       bool
}

// ParseFileName extracts metadata from a result-file base name.
func ParseFileName(name string) (FileMeta, bool) {
	m := resultFileRe.FindStringSubmatch(name)
	if m == nil {
		return FileMeta{}, false
	}
	return FileMeta{
		Tool:        m[resultFileRe.SubexpIndex("tool")],
		Date:        m[resultFileRe.SubexpIndex("date")],
		Competition: m[resultFileRe.SubexpIndex("competition")],
		Category:    m[resultFileRe.SubexpIndex("category")],
		Fixed:       m[resultFileRe.SubexpIndex("fixed")] != "",
	}, true
}

// FindLatest resolves the newest result file of a tool for a category,
// preferring adjusted (".fixed.") files over raw ones with the same date.
// Returns "" without error when the tool has no file for that category,
// which callers treat as non-participation.
func FindLatest(dir, tool, category string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing result directory: %w", err)
	}

	best := ""
	var bestMeta FileMeta
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		meta, ok := ParseFileName(e.Name())
		if !ok || meta.Tool != tool || meta.Category != category {
			continue
		}
		if best == "" || meta.Date > bestMeta.Date ||
			(meta.Date == bestMeta.Date && meta.Fixed && !bestMeta.Fixed) {
			best = e.Name()
			bestMeta = meta
		}
	}
	if best == "" {
		return "", nil
	}
	return filepath.Join(dir, best), nil
}

// Save writes a run set in the JSON layout, compressing when the path
// ends in .zst. Typed column values assigned after loading, such as the
// score and the witness columns carried over during adjustment, are
// written back alongside the raw columns.
func Save(path string, set *RunSet) error {
	doc := runSetDocument{
		Tool:    set.Tool,
		Name:    set.Name,
		Records: make([]recordDocument, 0, set.Len()),
	}
	for _, rec := range set.Tasks() {
		rd := recordDocument{
			Task:            rec.Task,
			Property:        rec.Property,
			Status:          rec.Status,
			Category:        string(rec.Category),
			WitnessCategory: rec.WitnessCategory,
		}
		rd.ExpectedVerdict = rec.Expected
		if len(rec.Columns.Raw) > 0 {
			rd.Columns = make(map[string]any, len(rec.Columns.Raw))
			for k, v := range rec.Columns.Raw {
				rd.Columns[k] = v
			}
		}
		setColumn := func(key, value string) {
			if value == "" {
				return
			}
			if rd.Columns == nil {
				rd.Columns = map[string]any{}
			}
			rd.Columns[key] = value
		}
		if score, ok := rec.Columns.Score.Get(); ok {
			setColumn("score", strconv.FormatFloat(score, 'f', -1, 64))
		}
		setColumn("witnesslint-witness-type", rec.Columns.WitnessType)
		setColumn("witnesslint-witness-file", rec.Columns.WitnessFile)
		doc.Records = append(doc.Records, rd)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	defer f.Close()

	var writer io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("opening zstd stream for %s: %w", path, err)
		}
		writer = zw
	}

	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding result file %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("closing zstd stream for %s: %w", path, err)
		}
	}
	return nil
}
