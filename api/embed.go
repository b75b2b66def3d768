// Package api carries the OpenAPI description of the auth backend.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
