package data

import (
	"errors"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// JSONPatchError tags failed patches, including failed "test" operations.
const JSONPatchError = "Json patch"

// JSONPatch applies an RFC 6902 patch to doc, or to the current output
// when doc is absent. Key order of the document is kept.
var JSONPatch = &engine.Handler{
	Name:  "Json patch",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		doc, ok := arg.Get("doc")
		if !ok {
			doc = c.Output()
		}
		if doc == nil {
			return nil, engine.FormatError("Json patch needs 'doc' parameter or non-null output variable.")
		}
		ops, ok := arg.Get("patch")
		if _, isList := ops.([]any); !ok || !isList {
			return nil, engine.FormatError("Json patch: expected field 'patch' with a list of operations")
		}
		return applyPatch(doc, ops)
	},
}

func applyPatch(doc, ops any) (any, error) {
	docJSON, err := node.JSON(doc, false)
	if err != nil {
		return nil, engine.InternalError(err, "Json patch")
	}
	opsJSON, err := node.JSON(ops, false)
	if err != nil {
		return nil, engine.InternalError(err, "Json patch")
	}
	patch, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return nil, engine.FormatError("Json patch: %v", err)
	}
	out, err := patch.Apply(docJSON)
	if err != nil {
		data := node.ObjectOf("test failed", errors.Is(err, jsonpatch.ErrTestFailed))
		return nil, engine.TypedError(JSONPatchError, data, "Json patch: %v", err)
	}
	return node.Parse(string(out))
}
