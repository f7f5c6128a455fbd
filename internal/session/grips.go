// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package session

import (
	"encoding/json"
	"strconv"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
)

// renderGrip produces the display string for a grip.
func renderGrip(grip *actors.Grip) string {
	if grip == nil {
		return "undefined"
	}

	if grip.Primitive != nil {
		return renderPrimitive(grip.Primitive)
	}

	switch grip.Type {
	case "undefined":
		return "undefined"
	case "null":
		return "null"
	case "NaN":
		return "NaN"
	case "Infinity":
		return "Infinity"
	case "-Infinity":
		return "-Infinity"
	case "-0":
		return "-0"
	case "longString":
		return grip.Initial + "…"
	case "symbol":
		return grip.DisplayString
	case "object":
		return renderObjectGrip(grip)
	default:
		return grip.Type
	}
}

func renderPrimitive(raw json.RawMessage) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	default:
		return string(raw)
	}
}

func renderObjectGrip(grip *actors.Grip) string {
	if grip.Class == "Function" {
		return "function"
	}

	if grip.Preview != nil && grip.Preview.Kind == "Error" && grip.Preview.Message != nil {
		return renderGrip(grip.Preview.Message)
	}

	if grip.Class != "" {
		return grip.Class
	}
	return "Object"
}

// exceptionText derives the text for an exception stop. Object-typed exception
// grips carry the message in their preview.
func exceptionText(why *actors.PausedReason) string {
	if why == nil || why.Exception == nil {
		return ""
	}
	return renderGrip(why.Exception)
}
