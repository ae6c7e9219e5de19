// Package ledger is the append-only record of finished training runs.
//
// The ledger is a single CSV table. Each run adds one row carrying the train
// and test metrics, the fit diagnosis and a ranking score; rows are never
// rewritten or removed. Appends are serialised with an in-process mutex and
// an advisory lock on "<path>.lock", and the table is replaced atomically so
// a failed write leaves the previous file untouched.
package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immoeliza/pricetune/diagnosis"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// TimestampLayout is the layout of the timestamp and data_file_timestamp columns.
const TimestampLayout = "2006-01-02 15:04:05"

// Column names in write order. Older files may carry a prefix of this list.
const (
	ColTimestamp         = "timestamp"
	ColModel             = "model"
	ColExperiment        = "experiment"
	ColMAETrain          = "mae_train"
	ColRMSETrain         = "rmse_train"
	ColR2Train           = "r2_train"
	ColMAETest           = "mae_test"
	ColRMSETest          = "rmse_test"
	ColR2Test            = "r2_test"
	ColR2Gap             = "r2_gap"
	ColR2GapDiagnostic   = "r2_gap_diagnostic"
	ColNFeatures         = "n_features"
	ColDataFile          = "data_file"
	ColDataFileTimestamp = "data_file_timestamp"
	ColTestMode          = "test_mode"
	ColExecutionMode     = "execution_mode"
	ColInterpretation    = "interpretation (r2,mae_gap)"
	ColRankingScore      = "ranking_score"
	ColRunID             = "run_id"
)

// Columns is the full header of a ledger written by this package.
var Columns = []string{
	ColTimestamp, ColModel, ColExperiment,
	ColMAETrain, ColRMSETrain, ColR2Train,
	ColMAETest, ColRMSETest, ColR2Test,
	ColR2Gap, ColR2GapDiagnostic, ColNFeatures,
	ColDataFile, ColDataFileTimestamp, ColTestMode, ColExecutionMode,
	ColInterpretation, ColRankingScore, ColRunID,
}

// Weights are the coefficients of the ranking score.
type Weights struct {
	R2   float64 `yaml:"r2"`
	MAE  float64 `yaml:"mae"`
	RMSE float64 `yaml:"rmse"`
}

// DefaultWeights returns {R2: 2, MAE: 1, RMSE: 1}.
func DefaultWeights() Weights {
	return Weights{R2: 2.0, MAE: 1.0, RMSE: 1.0}
}

// RankingScore is w.R2·r2 − w.MAE·mae − w.RMSE·rmse over test metrics. Higher is better.
func RankingScore(mae, rmse, r2 float64, w Weights) float64 {
	return w.R2*r2 - w.MAE*mae - w.RMSE*rmse
}

// Entry is what a finished run reports to the ledger.
type Entry struct {
	Model      string
	Experiment string
	Train      metrics.Set
	Test       metrics.Set
	NFeatures  int
	// DataFile is the source data. Empty means the latest timestamped CSV in the store's DataDir.
	DataFile      string
	TestMode      bool
	ExecutionMode string
	// RunID is generated when empty.
	RunID string
}

// Row is one persisted run.
type Row struct {
	Timestamp         time.Time
	Model             string
	Experiment        string
	MAETrain          float64
	RMSETrain         float64
	R2Train           float64
	MAETest           float64
	RMSETest          float64
	R2Test            float64
	R2Gap             float64
	R2GapDiagnostic   string
	NFeatures         int
	DataFile          string
	DataFileTimestamp string
	TestMode          bool
	ExecutionMode     string
	Interpretation    string
	RankingScore      float64 // NaN when the row predates the column
	RunID             string

	// Extra keeps columns this package does not know about.
	Extra map[string]string
}

// HasRankingScore reports whether the row carries a ranking score.
func (r Row) HasRankingScore() bool { return !math.IsNaN(r.RankingScore) }

// Store appends to and reads a ledger file.
type Store struct {
	Path       string
	DataDir    string
	Weights    Weights
	Thresholds diagnosis.Thresholds
	Clock      func() time.Time
	// LockTimeout bounds the wait for the cross-process lock.
	LockTimeout time.Duration

	logger log.Logger
	mu     sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithWeights sets the ranking weights.
func WithWeights(w Weights) Option { return func(s *Store) { s.Weights = w } }

// WithThresholds sets the diagnosis thresholds.
func WithThresholds(th diagnosis.Thresholds) Option { return func(s *Store) { s.Thresholds = th } }

// WithClock sets the time source for the timestamp column.
func WithClock(clock func() time.Time) Option { return func(s *Store) { s.Clock = clock } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(s *Store) { s.logger = l } }

// NewStore returns a store for the ledger at path. dataDir is searched for the
// latest source file when an Entry does not name one.
func NewStore(path, dataDir string, opts ...Option) *Store {
	s := &Store{
		Path:        path,
		DataDir:     dataDir,
		Weights:     DefaultWeights(),
		Thresholds:  diagnosis.DefaultThresholds(),
		Clock:       time.Now,
		LockTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("ledger")
	}
	return s
}

// Log diagnoses and scores a run, appends it and returns the appended row.
// Nothing is written when validation, source resolution or diagnosis fails.
func (s *Store) Log(ctx context.Context, e Entry) (Row, error) {
	for name, v := range map[string]float64{"rmse_train": e.Train.RMSE, "rmse_test": e.Test.RMSE} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Row{}, errors.NewValidationError(name, "must be a finite non-negative number", v)
		}
	}

	dataFile := e.DataFile
	if dataFile == "" {
		latest, err := LatestDataFile(s.DataDir)
		if err != nil {
			return Row{}, err
		}
		dataFile = latest
	}
	var fileStamp string
	if info, err := os.Stat(dataFile); err == nil && info.Mode().IsRegular() {
		fileStamp = info.ModTime().Format(TimestampLayout)
	}

	diag, err := diagnosis.Diagnose(e.Train.MAE, e.Test.MAE, e.Train.R2, e.Test.R2, s.Thresholds)
	if err != nil {
		return Row{}, err
	}

	runID := e.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	row := Row{
		Timestamp:         s.Clock().Truncate(time.Second),
		Model:             e.Model,
		Experiment:        e.Experiment,
		MAETrain:          e.Train.MAE,
		RMSETrain:         e.Train.RMSE,
		R2Train:           e.Train.R2,
		MAETest:           e.Test.MAE,
		RMSETest:          e.Test.RMSE,
		R2Test:            e.Test.R2,
		R2Gap:             diag.R2Gap,
		R2GapDiagnostic:   string(diag.Tier),
		NFeatures:         e.NFeatures,
		DataFile:          filepath.Base(dataFile),
		DataFileTimestamp: fileStamp,
		TestMode:          e.TestMode,
		ExecutionMode:     e.ExecutionMode,
		Interpretation:    diag.Interpretation(),
		RankingScore:      RankingScore(e.Test.MAE, e.Test.RMSE, e.Test.R2, s.Weights),
		RunID:             runID,
	}

	if err := s.appendRow(ctx, row); err != nil {
		return Row{}, err
	}
	s.logger.Info("Run appended to ledger",
		log.LedgerPathKey, s.Path,
		log.ModelNameKey, row.Model,
		log.ScoreKey, row.RankingScore,
		"diagnosis", diag,
		"run_id", row.RunID,
	)
	return row, nil
}

func (s *Store) appendRow(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return errors.Wrap(err, "create ledger directory")
	}

	lctx, cancel := context.WithTimeout(ctx, s.LockTimeout)
	defer cancel()
	lock, err := acquireLock(lctx, s.Path+".lock")
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	header, records, err := readTable(s.Path)
	if err != nil {
		return err
	}
	header = unionHeader(header, Columns)
	records = append(records, row.record())
	return writeTable(s.Path, header, records)
}

// Rows reads every row in file order. A missing ledger yields no rows.
func (s *Store) Rows() ([]Row, error) {
	rows, _, err := s.read()
	return rows, err
}

func (s *Store) read() ([]Row, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, records, err := readTable(s.Path)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		r, err := parseRow(rec)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "ledger row %d", i+1)
		}
		rows = append(rows, r)
	}
	return rows, header, nil
}

var dataFilePattern = regexp.MustCompile(`_(\d{8}_\d{4})\.csv$`)

// LatestDataFile returns the CSV in dir whose name carries the latest
// _YYYYMMDD_HHMM stamp. Files without a stamp are ignored.
func LatestDataFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("timestamped CSV file", dir)
		}
		return "", errors.Wrapf(err, "list %s", dir)
	}

	var latest, latestStamp string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dataFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if m[1] > latestStamp {
			latest, latestStamp = e.Name(), m[1]
		}
	}
	if latest == "" {
		return "", errors.NewNotFoundError("timestamped CSV file", dir)
	}
	return filepath.Join(dir, latest), nil
}

// readTable returns the header and the records keyed by column name.
func readTable(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "open ledger")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "read ledger header")
	}

	var records []map[string]string
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read ledger")
		}
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			}
		}
		records = append(records, rec)
	}
	return header, records, nil
}

// writeTable replaces path with the given table via a synced temp file and rename.
func writeTable(path string, header []string, records []map[string]string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create ledger temp file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(header); err != nil {
		return errors.Wrap(err, "write ledger header")
	}
	line := make([]string, len(header))
	for _, rec := range records {
		for i, name := range header {
			line[i] = rec[name]
		}
		if err = w.Write(line); err != nil {
			return errors.Wrap(err, "write ledger row")
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return errors.Wrap(err, "flush ledger")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync ledger")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close ledger temp file")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "replace ledger")
	}
	return nil
}

// unionHeader keeps the existing order and appends any wanted column it lacks.
func unionHeader(existing, wanted []string) []string {
	out := append([]string(nil), existing...)
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}
	for _, c := range wanted {
		if _, ok := have[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (r Row) record() map[string]string {
	rec := make(map[string]string, len(Columns)+len(r.Extra))
	for k, v := range r.Extra {
		rec[k] = v
	}
	rec[ColTimestamp] = r.Timestamp.Format(TimestampLayout)
	rec[ColModel] = r.Model
	rec[ColExperiment] = r.Experiment
	rec[ColMAETrain] = formatFloat(r.MAETrain)
	rec[ColRMSETrain] = formatFloat(r.RMSETrain)
	rec[ColR2Train] = formatFloat(r.R2Train)
	rec[ColMAETest] = formatFloat(r.MAETest)
	rec[ColRMSETest] = formatFloat(r.RMSETest)
	rec[ColR2Test] = formatFloat(r.R2Test)
	rec[ColR2Gap] = formatFloat(r.R2Gap)
	rec[ColR2GapDiagnostic] = r.R2GapDiagnostic
	rec[ColNFeatures] = strconv.Itoa(r.NFeatures)
	rec[ColDataFile] = r.DataFile
	rec[ColDataFileTimestamp] = r.DataFileTimestamp
	rec[ColTestMode] = strconv.FormatBool(r.TestMode)
	rec[ColExecutionMode] = r.ExecutionMode
	rec[ColInterpretation] = r.Interpretation
	rec[ColRankingScore] = formatFloat(r.RankingScore)
	rec[ColRunID] = r.RunID
	return rec
}

func parseRow(rec map[string]string) (Row, error) {
	r := Row{
		Model:             rec[ColModel],
		Experiment:        rec[ColExperiment],
		R2GapDiagnostic:   rec[ColR2GapDiagnostic],
		DataFile:          rec[ColDataFile],
		DataFileTimestamp: rec[ColDataFileTimestamp],
		ExecutionMode:     rec[ColExecutionMode],
		Interpretation:    rec[ColInterpretation],
		RunID:             rec[ColRunID],
	}

	if ts := rec[ColTimestamp]; ts != "" {
		t, err := time.ParseInLocation(TimestampLayout, ts, time.Local)
		if err != nil {
			return Row{}, errors.NewValidationError(ColTimestamp, "malformed timestamp", ts)
		}
		r.Timestamp = t
	}

	floats := []struct {
		col string
		dst *float64
	}{
		{ColMAETrain, &r.MAETrain}, {ColRMSETrain, &r.RMSETrain}, {ColR2Train, &r.R2Train},
		{ColMAETest, &r.MAETest}, {ColRMSETest, &r.RMSETest}, {ColR2Test, &r.R2Test},
		{ColR2Gap, &r.R2Gap}, {ColRankingScore, &r.RankingScore},
	}
	for _, f := range floats {
		v, err := parseFloat(f.col, rec[f.col])
		if err != nil {
			return Row{}, err
		}
		*f.dst = v
	}

	if s := rec[ColNFeatures]; s != "" {
		v, err := parseFloat(ColNFeatures, s)
		if err != nil {
			return Row{}, err
		}
		r.NFeatures = int(v)
	}
	if s := rec[ColTestMode]; s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Row{}, errors.NewValidationError(ColTestMode, "not a boolean", s)
		}
		r.TestMode = b
	}

	known := make(map[string]struct{}, len(Columns))
	for _, c := range Columns {
		known[c] = struct{}{}
	}
	for k, v := range rec {
		if _, ok := known[k]; ok {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[k] = v
	}
	return r, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(col, s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewValidationError(col, "not a number", s)
	}
	return v, nil
}
