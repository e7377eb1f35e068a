// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput checks tool arguments against the definition's JSON
// Schema. A nil or empty schema accepts anything.
func ValidateInput(def ToolDefinition, args map[string]interface{}) error {
	if len(def.InputSchema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewBytesLoader(def.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed for tool %s: %w", def.Name, err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid input for tool %s: %s", def.Name, strings.Join(problems, "; "))
}
