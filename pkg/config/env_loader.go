/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/solarpulse/pkg/models"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
	// ErrUnsupportedFieldType is returned for env values targeting a kind we cannot parse.
	ErrUnsupportedFieldType = errors.New("unsupported field type")
)

//nolint:gochecknoglobals // type identity used during reflection
var durationType = reflect.TypeOf(models.Duration(0))

// EnvConfigLoader overlays environment variables onto a struct. Names are
// built from json tags joined by underscores, so with prefix "SOLARPULSE_"
// the field Database.Host maps to SOLARPULSE_DATABASE_HOST.
type EnvConfigLoader struct {
	prefix string
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{prefix: prefix}
}

// Load implements ConfigLoader. The path argument is ignored.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	_, err := e.loadStruct(v, e.prefix)

	return err
}

// loadStruct reports whether any field was set so that nil struct pointers
// are only allocated when an override targets them.
func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) (bool, error) {
	t := v.Type()
	changed := false

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(name)

		set, err := e.loadField(field, envName)
		if err != nil {
			return changed, err
		}

		changed = changed || set
	}

	return changed, nil
}

func (e *EnvConfigLoader) loadField(field reflect.Value, envName string) (bool, error) {
	if field.Type() != durationType {
		switch {
		case field.Kind() == reflect.Struct:
			return e.loadStruct(field, envName+"_")
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			target := reflect.New(field.Type().Elem())
			if !field.IsNil() {
				target.Elem().Set(field.Elem())
			}

			set, err := e.loadStruct(target.Elem(), envName+"_")
			if err != nil || !set {
				return false, err
			}

			field.Set(target)

			return true, nil
		}
	}

	raw, ok := os.LookupEnv(envName)
	if !ok || raw == "" {
		return false, nil
	}

	if err := setValue(field, raw); err != nil {
		return false, fmt.Errorf("%s: %w", envName, err)
	}

	return true, nil
}

func setValue(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}

		field.SetInt(int64(d))

		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, field.Type())
		}

		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))

		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}

		field.Set(out)
	case reflect.Ptr:
		target := reflect.New(field.Type().Elem())
		if err := setValue(target.Elem(), raw); err != nil {
			return err
		}

		field.Set(target)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, field.Type())
	}

	return nil
}
