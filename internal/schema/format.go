/*
Copyright 2025 The Kubernator Authors.

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

package schema

import "encoding/base64"

// FormatChecker validates a datum against one of the OpenAPI/Kubernetes
// extension formats that a stock JSON-Schema validator doesn't know about.
// Each checker returns false (never an error) for a datum that fails the
// format, mirroring the Python tool's jsonschema FormatChecker registry
// in original_source/.../plugins/k8s_api.py.
type FormatChecker func(value any) bool

// formatCheckers mirrors k8s_format_checker from the original tool:
// int-or-string, byte, int32, int64, float and double.
var formatCheckers = map[string]FormatChecker{
	"int32":        checkInt32,
	"int64":        checkInt64,
	"float":        checkFloat,
	"double":       checkDouble,
	"byte":         checkByte,
	"int-or-string": checkIntOrString,
}

// CheckFormat runs the named format checker, if one is registered. It
// returns true when no checker is registered for the format, since an
// unknown format is not this validator's concern.
func CheckFormat(format string, value any) bool {
	checker, ok := formatCheckers[format]
	if !ok {
		return true
	}
	return checker(value)
}

func isInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// encoding/json decodes all numbers as float64; only treat it as
		// an integer if it round-trips exactly, matching Python's int
		// check (bools are excluded by the type switch itself).
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

func checkInt32(value any) bool {
	i, ok := isInteger(value)
	if !ok {
		return false
	}
	return i > -2147483648 && i < 2147483647
}

func checkInt64(value any) bool {
	_, ok := isInteger(value)
	return ok
}

func checkFloat(value any) bool {
	f, ok := value.(float64)
	if !ok {
		return false
	}
	return f > -3.4e38 && f < 3.4e38
}

func checkDouble(value any) bool {
	f, ok := value.(float64)
	return ok && f > -1.7e308 && f < 1.7e308
}

func checkByte(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// checkIntOrString accepts either an int32-range integer or a string,
// the Kubernetes intstr.IntOrString convention.
func checkIntOrString(value any) bool {
	if i, ok := isInteger(value); ok {
		return i > -2147483648 && i < 2147483647
	}
	_, ok := value.(string)
	return ok
}
