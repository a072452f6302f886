/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package state keeps named processing parameter presets in a bbolt database.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"jinr.ru/greenlab/go-eeg/pkg/log"
	"jinr.ru/greenlab/go-eeg/pkg/processing"
)

const (
	PresetsBucket = "presets"
	// DefaultPreset is written on the first open so a fresh database is usable
	DefaultPreset = "default"
	openTimeout   = time.Second
)

type ErrPresetNotFound struct {
	Name string
}

func (e ErrPresetNotFound) Error() string {
	return fmt.Sprintf("Preset not found: %s", e.Name)
}

type ErrInvalidPresetName struct {
	Name string
}

func (e ErrInvalidPresetName) Error() string {
	return fmt.Sprintf("Invalid preset name: %q", e.Name)
}

type Presets struct {
	DB *bbolt.DB
}

// Open opens or creates the preset database at path
func Open(path string) (*Presets, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open preset database %s: %w", path, err)
	}
	if err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(PresetsBucket))
		if err != nil {
			return err
		}
		if b.Get([]byte(DefaultPreset)) != nil {
			return nil
		}
		data, err := json.Marshal(processing.DefaultParameters())
		if err != nil {
			return err
		}
		return b.Put([]byte(DefaultPreset), data)
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Presets{DB: db}, nil
}

func (s *Presets) Close() error {
	return s.DB.Close()
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/?#") {
		return ErrInvalidPresetName{Name: name}
	}
	return nil
}

// Put validates the parameters and stores them under name, replacing a previous preset
func (s *Presets) Put(name string, params processing.Parameters) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	log.Debug("Storing preset %s: %s", name, params)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(PresetsBucket)).Put([]byte(name), data)
	})
}

func (s *Presets) Get(name string) (processing.Parameters, error) {
	var params processing.Parameters
	err := s.DB.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(PresetsBucket)).Get([]byte(name))
		if data == nil {
			return ErrPresetNotFound{Name: name}
		}
		// fields missing in older presets keep their defaults
		params = processing.DefaultParameters()
		return json.Unmarshal(data, &params)
	})
	return params, err
}

// List returns preset names in lexical order
func (s *Presets) List() ([]string, error) {
	names := []string{}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(PresetsBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *Presets) Delete(name string) error {
	log.Debug("Deleting preset %s", name)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(PresetsBucket))
		if b.Get([]byte(name)) == nil {
			return ErrPresetNotFound{Name: name}
		}
		return b.Delete([]byte(name))
	})
}
