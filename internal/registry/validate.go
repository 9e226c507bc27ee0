package registry

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mcplens/lens-proxy/internal/perr"
)

// validateDrillInArgs checks a drill-in call's arguments against the
// tool's declared input schema before dispatch, so a malformed
// proxy_filter/proxy_search/proxy_explore call fails fast with a
// schema-grounded message instead of surfacing as a deeper, less
// legible error once the pipeline starts acting on it.
func validateDrillInArgs(tool mcp.Tool, args map[string]interface{}) error {
	if tool.InputSchema.Properties == nil {
		return nil // no schema = no validation
	}

	doc := map[string]interface{}{"type": tool.InputSchema.Type, "properties": tool.InputSchema.Properties}
	if len(tool.InputSchema.Required) > 0 {
		doc["required"] = tool.InputSchema.Required
	}

	schemaLoader := gojsonschema.NewGoLoader(doc)
	argsLoader := gojsonschema.NewGoLoader(map[string]interface{}(args))

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return perr.Wrap(perr.KindInvalidArgument, err, "validating arguments for %s", tool.Name)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return perr.New(perr.KindInvalidArgument, "invalid arguments for %s: %s", tool.Name, strings.Join(msgs, "; "))
	}
	return nil
}
