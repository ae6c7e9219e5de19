package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// SaveModel はモデルをgobでファイルに保存する
//
// 同じディレクトリの一時ファイルに書き込んでからrenameするため、
// 途中で失敗しても既存ファイルが壊れることはない。
//
// 使用例:
//
//	err := model.SaveModel(gbdtModel, "models/GBDT_20250101_1200.gob")
func SaveModel(model interface{}, filename string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = SaveModelToWriter(model, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync model file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close model file")
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return errors.Wrap(err, "failed to move model file into place")
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var m gbdt.Model
//	err := model.LoadModel(&m, "model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
