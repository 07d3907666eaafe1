// Package template renders chain configuration values against a route document.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/graphroute/pkg/protocol"
)

// RenderDocument renders input with the route document bound as data.
func RenderDocument(input string, doc *protocol.DocumentContext) (any, error) {
	data := map[string]any{
		"route": map[string]any{
			"id":        doc.RouteID,
			"name":      doc.RouteName,
			"initiator": doc.Initiator,
		},
		"node_id":       doc.NodeID,
		"transition_id": doc.TransitionID,
		"vars":          doc.RouteVariables.Map(),
		"node":          doc.NodeVariables.Map(),
		"env":           getEnvVars(),
	}

	return Render(input, data)
}

// Render executes a text/template and decodes the output as JSON, a number
// or a boolean when it looks like one.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("chain").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// NeedsTemplating reports whether input holds template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
