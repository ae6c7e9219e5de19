// Package errors はパイプライン全体のエラーハンドリングと警告システムを提供します。
// 各エラー型は構造化された情報を持ち、zerologで構造化ログとして出力できます。
package errors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler func(w error)
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// 評価指標や閾値が不正な値（NaN、負のMAE、1を超えるR²など）の場合に返されます。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pricetune: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// InvalidInputError は評価指標の入力ベクトルが不正な場合のエラーです。
// 長さが一致しない、または長さがゼロの場合に返されます。
type InvalidInputError struct {
	Op       string
	Expected int
	Got      int
	Reason   string
}

func (e *InvalidInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("pricetune: %s: invalid input: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("pricetune: %s: invalid input: length mismatch. Expected %d, got %d", e.Op, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidInputError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("reason", e.Reason).
		Str("type", "InvalidInputError")
}

// NewInvalidInputError は長さ不一致のInvalidInputErrorを作成します。
func NewInvalidInputError(op string, expected, got int) error {
	return errors.WithStack(&InvalidInputError{Op: op, Expected: expected, Got: got})
}

// NewEmptyInputError は空入力のInvalidInputErrorを作成します。
func NewEmptyInputError(op string) error {
	return errors.WithStack(&InvalidInputError{Op: op, Reason: "empty vector"})
}

// SchemaMismatchError は特徴量テーブルのスキーマが期待と異なる場合のエラーです。
// 設定された特徴量が欠けている場合や、予測時の列順・列名が学習時と異なる場合に返されます。
type SchemaMismatchError struct {
	Phase    string   // "selection", "prediction", "artifact"
	Expected []string // 期待される特徴量名（順序付き）
	Got      []string // 実際の特徴量名
	Missing  []string // 欠けている特徴量名
}

func (e *SchemaMismatchError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("pricetune: schema mismatch in %s phase: missing columns [%s]",
			e.Phase, strings.Join(e.Missing, ", "))
	}
	if e.Expected == nil && e.Got == nil {
		return fmt.Sprintf("pricetune: schema mismatch in %s phase", e.Phase)
	}
	return fmt.Sprintf("pricetune: schema mismatch in %s phase: expected %d columns %v, got %d columns %v",
		e.Phase, len(e.Expected), e.Expected, len(e.Got), e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("phase", e.Phase).
		Strs("expected", e.Expected).
		Strs("got", e.Got).
		Strs("missing", e.Missing).
		Str("type", "SchemaMismatchError")
}

// NewMissingColumnsError は欠損列を報告するSchemaMismatchErrorを作成します。
func NewMissingColumnsError(phase string, missing []string) error {
	return errors.WithStack(&SchemaMismatchError{Phase: phase, Missing: missing})
}

// NewSchemaMismatchError は列構成の不一致を報告するSchemaMismatchErrorを作成します。
func NewSchemaMismatchError(phase string, expected, got []string) error {
	return errors.WithStack(&SchemaMismatchError{Phase: phase, Expected: expected, Got: got})
}

// TrialFailureError はハイパーパラメータ探索の1試行が失敗した場合のエラーです。
// 探索全体は継続し、この試行のみが破棄されます。
type TrialFailureError struct {
	Trial int
	Fold  int // -1 if the failure is not fold specific
	Err   error
}

func (e *TrialFailureError) Error() string {
	if e.Fold >= 0 {
		return fmt.Sprintf("pricetune: trial %d failed in fold %d: %v", e.Trial, e.Fold, e.Err)
	}
	return fmt.Sprintf("pricetune: trial %d failed: %v", e.Trial, e.Err)
}

func (e *TrialFailureError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrialFailureError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("trial", e.Trial).
		Int("fold", e.Fold).
		AnErr("cause", e.Err).
		Str("type", "TrialFailureError")
}

// NewTrialFailureError は新しいTrialFailureErrorを作成し、スタックトレースを付与します。
func NewTrialFailureError(trial, fold int, err error) error {
	return errors.WithStack(&TrialFailureError{Trial: trial, Fold: fold, Err: err})
}

// ResourceUnavailableError は高速実行モードが利用できない場合のエラーです。
// 内部で捕捉され、標準モードへのフォールバックと警告ログになります。
type ResourceUnavailableError struct {
	Resource string
	Reason   string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("pricetune: resource %q unavailable: %s", e.Resource, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ResourceUnavailableError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("resource", e.Resource).
		Str("reason", e.Reason).
		Str("type", "ResourceUnavailableError")
}

// NewResourceUnavailableError は新しいResourceUnavailableErrorを作成します。
func NewResourceUnavailableError(resource, reason string) error {
	return errors.WithStack(&ResourceUnavailableError{Resource: resource, Reason: reason})
}

// NotFoundError は必要なファイルが見つからない場合のエラーです。
type NotFoundError struct {
	What     string
	Location string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pricetune: no %s found in %s", e.What, e.Location)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("what", e.What).
		Str("location", e.Location).
		Str("type", "NotFoundError")
}

// NewNotFoundError は新しいNotFoundErrorを作成し、スタックトレースを付与します。
func NewNotFoundError(what, location string) error {
	return errors.WithStack(&NotFoundError{What: what, Location: location})
}

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("pricetune: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("pricetune: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Mark はエラーにセンチネルの印を付けます。errors.Is(err, reference) が真になります。
func Mark(err, reference error) error {
	return errors.Mark(err, reference)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoValidTrial は予算内の全ての試行が失敗した場合のエラーです。
	ErrNoValidTrial = New("no valid best configuration: every trial failed")

	// ErrLedgerLocked は台帳ファイルのロック取得に失敗した場合のエラーです。
	ErrLedgerLocked = New("ledger is locked by another writer")
)
