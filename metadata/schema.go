// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchemaJSON constrains only the outer envelope shared by every role
// (signed/signatures), leaving role-specific payload shape to checkType and
// the Go struct tags themselves. It exists to turn a truncated or
// completely malformed document into a clear structural error before
// checkType's blind map-indexing would otherwise panic on a missing key.
const envelopeSchemaJSON = `{
	"type": "object",
	"required": ["signed", "signatures"],
	"properties": {
		"signed": {
			"type": "object",
			"required": ["_type", "spec_version", "version", "expires"],
			"properties": {
				"_type": {"type": "string"},
				"spec_version": {"type": "string"},
				"version": {"type": "integer"},
				"expires": {"type": "string"}
			}
		},
		"signatures": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["keyid", "sig"]
			}
		}
	}
}`

var envelopeSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const schemaURL = "https://tuf.local/envelope.schema.json"
	if err := compiler.AddResource(schemaURL, bytes.NewReader([]byte(envelopeSchemaJSON))); err != nil {
		panic(err)
	}
	s, err := compiler.Compile(schemaURL)
	if err != nil {
		panic(err)
	}
	return s
}()

// validateEnvelope checks that data is a structurally valid signed metadata
// envelope before any role-specific parsing (checkType, json.Unmarshal into
// the typed Signed struct) is attempted.
func validateEnvelope(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ErrValue{Msg: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := envelopeSchema.Validate(doc); err != nil {
		return ErrValue{Msg: fmt.Sprintf("metadata failed structural validation: %v", err)}
	}
	return nil
}
