package gbdt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	coremodel "github.com/immoeliza/pricetune/core/model"
	"github.com/immoeliza/pricetune/pkg/errors"
)

// RunStampLayout formats the run timestamp embedded in artifact names.
const RunStampLayout = "20060102_1504"

// Artifacts are the two files written for one fitted model.
type Artifacts struct {
	ModelPath    string // gob-encoded Model
	FeaturesPath string // JSON array of the ordered feature names
}

// ArtifactBaseName returns "<slug>_<YYYYMMDD_HHMM>[_TEST]".
func ArtifactBaseName(name string, stamp time.Time, dev bool) string {
	base := Slug(name) + "_" + stamp.Format(RunStampLayout)
	if dev {
		base += "_TEST"
	}
	return base
}

// Slug lowercases name and replaces every run of non-alphanumerics with "_".
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	s := strings.TrimSuffix(b.String(), "_")
	if s == "" {
		return "model"
	}
	return s
}

// SaveArtifacts writes the model blob and its sibling feature list into dir.
func SaveArtifacts(m *Model, dir, name string, stamp time.Time, dev bool) (Artifacts, error) {
	if m == nil {
		return Artifacts{}, errors.NewNotFittedError("GBDT", "SaveArtifacts")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, errors.Wrapf(err, "create %s", dir)
	}

	base := filepath.Join(dir, ArtifactBaseName(name, stamp, dev))
	a := Artifacts{ModelPath: base + ".gob", FeaturesPath: base + ".json"}

	if err := coremodel.SaveModel(m, a.ModelPath); err != nil {
		return Artifacts{}, err
	}
	data, err := json.MarshalIndent(m.FeatureNames, "", "  ")
	if err != nil {
		return Artifacts{}, errors.Wrap(err, "encode feature names")
	}
	if err := os.WriteFile(a.FeaturesPath, append(data, '\n'), 0o644); err != nil {
		return Artifacts{}, errors.Wrapf(err, "write %s", a.FeaturesPath)
	}
	return a, nil
}

// LoadArtifacts reads a model blob and its sibling feature list, failing with a
// SchemaMismatchError if the two disagree.
func LoadArtifacts(modelPath string) (*Model, error) {
	var m Model
	if err := coremodel.LoadModel(&m, modelPath); err != nil {
		return nil, errors.Wrapf(err, "load %s", modelPath)
	}

	featuresPath := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
	data, err := os.ReadFile(featuresPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", featuresPath)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, errors.Wrapf(err, "decode %s", featuresPath)
	}
	if !slices.Equal(names, m.FeatureNames) {
		return nil, errors.NewSchemaMismatchError("artifact", names, m.FeatureNames)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
