package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode unmarshals tool arguments into T. Unknown fields are ignored so the
// turn log tools stay tolerant of clients sending extra filters.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	return decodeArgs[T](req, false)
}

// decodeStrict is decode for tools that act on the running overlay: an
// unknown argument is an error rather than a silently ignored option.
func decodeStrict[T any](req mcp.CallToolRequest) (T, error) {
	return decodeArgs[T](req, true)
}

func decodeArgs[T any](req mcp.CallToolRequest, strict bool) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}
