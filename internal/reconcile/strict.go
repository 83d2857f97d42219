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

package reconcile

import (
	"regexp"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/kubernator-io/kubernator/internal/resource"
)

// strictDecodingMarker is the prefix the API server attaches to the
// message of a BadRequest returned for Strict field validation, per
// spec.md §7.
const strictDecodingMarker = "strict decoding error: "

var quotedField = regexp.MustCompile(`"([^"]+)"`)

// Warning is one field-validation complaint accumulated during the apply
// pass, per spec.md §7's "parsed into per-field warnings" note.
type Warning struct {
	ResourceKey string
	Field       string
}

// parseStrictDecodingWarnings extracts one Warning per comma-separated
// `unknown field "..."` clause from a BadRequest error carrying the
// strict-decoding marker, matching the "Strict field validation on K8s
// >= 1.25 surfaces each comma-separated field ... as a distinct warning"
// boundary behavior in spec.md §8. Returns nil, false when err is not
// such an error.
func parseStrictDecodingWarnings(resourceKey string, err error) ([]Warning, bool) {
	if !apierrors.IsBadRequest(err) {
		return nil, false
	}

	causes := resource.StatusCauses(err)
	var message string
	for _, cause := range causes {
		if strings.Contains(cause.Message, strictDecodingMarker) {
			message = cause.Message
			break
		}
	}
	if message == "" {
		if !strings.Contains(err.Error(), strictDecodingMarker) {
			return nil, false
		}
		message = err.Error()
	}

	idx := strings.Index(message, strictDecodingMarker)
	rest := message[idx+len(strictDecodingMarker):]

	var warnings []Warning
	for _, clause := range strings.Split(rest, ",") {
		m := quotedField.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		warnings = append(warnings, Warning{ResourceKey: resourceKey, Field: m[1]})
	}

	if len(warnings) == 0 {
		warnings = append(warnings, Warning{ResourceKey: resourceKey, Field: strings.TrimSpace(rest)})
	}

	return warnings, true
}

// isImmutableRejection reports whether err is the HTTP 422 signature
// spec.md §4.4 step 4.b describes: a FieldValueInvalid cause mentioning
// "field is immutable", or a FieldValueForbidden cause mentioning
// "updates to" or "pod updates".
func isImmutableRejection(err error) bool {
	if !apierrors.IsInvalid(err) {
		return false
	}

	for _, cause := range resource.StatusCauses(err) {
		switch cause.Type {
		case "FieldValueInvalid":
			if strings.Contains(cause.Message, "field is immutable") {
				return true
			}
		case "FieldValueForbidden":
			if strings.Contains(cause.Message, "updates to") || strings.Contains(cause.Message, "pod updates") {
				return true
			}
		}
	}

	return false
}
