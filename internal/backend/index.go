// Package backend is the client side of the rebate service API: an OpenAPI
// operation index and an HTTP client that executes operations by id, decodes
// the uniform response envelope, and maps failures onto the dashboard error
// taxonomy. Every call is a single attempt; failures always surface to the
// user for an explicit retry.
package backend

import (
	"context"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// IndexedOperation holds a resolved OpenAPI operation with its context.
type IndexedOperation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	RequestBody  *openapi3.RequestBody
	Responses    *openapi3.Responses
}

// Index is an in-memory index of the rebate API's operations keyed by
// operationId.
type Index struct {
	operations map[string]IndexedOperation
}

// NewIndex creates an empty operation index.
func NewIndex() *Index {
	return &Index{operations: make(map[string]IndexedOperation)}
}

// Load parses the rebate API OpenAPI document and indexes all operations
// that carry an operationId.
func (idx *Index) Load(specPath string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return fmt.Errorf("backend: loading %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("backend: validating %s: %w", specPath, err)
	}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}

			// Merge path-level and operation-level parameters.
			params := make([]*openapi3.Parameter, 0)
			for _, ref := range pathItem.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			for _, ref := range op.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}

			var reqBody *openapi3.RequestBody
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				reqBody = op.RequestBody.Value
			}

			idx.operations[op.OperationID] = IndexedOperation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				Parameters:   params,
				RequestBody:  reqBody,
				Responses:    op.Responses,
			}
		}
	}
	return nil
}

// Operation returns the indexed operation for the given operation id.
func (idx *Index) Operation(operationID string) (IndexedOperation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// OperationIDs returns all indexed operation ids, sorted.
func (idx *Index) OperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed operations.
func (idx *Index) Len() int {
	return len(idx.operations)
}
