/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package expr

import (
	"fmt"
	"strconv"

	"github.com/Masterminds/sprig/v3"
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/goccy/go-json"

	"github.com/numaproj/numadedup/pkg/changelog"
)

var sprigFuncMap = sprig.GenericFuncMap()

// Filter is a boolean expression over the named fields of a row, e.g.
// `b > 0 && region != "test"`. The sprig, json, int and string helpers are
// available to the expression.
type Filter struct {
	expression string
	program    *vm.Program
	schema     *changelog.Schema
}

// NewFilter compiles expression against the fields of schema.
func NewFilter(expression string, schema *changelog.Schema) (*Filter, error) {
	env := getFuncMap(zeroValues(schema))
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %s", expression, err)
	}
	return &Filter{expression: expression, program: program, schema: schema}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expression
}

// Match evaluates the filter for row.
func (f *Filter) Match(row changelog.Row) (bool, error) {
	if len(row.Fields) != f.schema.Arity() {
		return false, fmt.Errorf("%w: expected %d fields, got %d", changelog.ErrSchemaMismatch, f.schema.Arity(), len(row.Fields))
	}
	fields := make(map[string]interface{}, len(row.Fields))
	for i, fd := range f.schema.Fields {
		fields[fd.Name] = row.Fields[i]
	}
	result, err := expr.Run(f.program, getFuncMap(fields))
	if err != nil {
		return false, fmt.Errorf("unable to evaluate expression '%s': %s", f.expression, err)
	}
	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return resultBool, nil
}

func zeroValues(schema *changelog.Schema) map[string]interface{} {
	m := make(map[string]interface{}, schema.Arity())
	for _, fd := range schema.Fields {
		m[fd.Name] = fd.Type.Zero()
	}
	return m
}

func getFuncMap(m map[string]interface{}) map[string]interface{} {
	env := make(map[string]interface{}, len(m)+4)
	for k, v := range m {
		env[k] = v
	}
	env["sprig"] = sprigFuncMap
	env["json"] = _json
	env["int"] = _int
	env["string"] = _string
	return env
}

func _int(v interface{}) int {
	switch w := v.(type) {
	case []byte:
		i, err := strconv.Atoi(string(w))
		if err != nil {
			panic(fmt.Errorf("cannot convert %q an int", v))
		}
		return i
	case string:
		i, err := strconv.Atoi(w)
		if err != nil {
			panic(fmt.Errorf("cannot convert %q to int", v))
		}
		return i
	case float64:
		return int(w)
	case int64:
		return int(w)
	case int:
		return w
	default:
		panic(fmt.Errorf("cannot convert %q to int", v))
	}
}

func _string(v interface{}) string {
	switch w := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(w)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func _json(v interface{}) map[string]interface{} {
	x := make(map[string]interface{})
	switch w := v.(type) {
	case nil:
		return nil
	case []byte:
		if err := json.Unmarshal(w, &x); err != nil {
			panic(fmt.Errorf("cannot convert %q to object: %v", v, err))
		}
		return x
	case string:
		if err := json.Unmarshal([]byte(w), &x); err != nil {
			panic(fmt.Errorf("cannot convert %q to object: %v", v, err))
		}
		return x
	default:
		panic("unknown type")
	}
}
