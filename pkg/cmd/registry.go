// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/graphroute/pkg/chains"
	"github.com/go-playground/validator/v10"
)

// NewChainRegistry returns the built-in chain factories plus the chains
// defined in the JSON array at definitionsPath, when one is given.
func NewChainRegistry(logger *slog.Logger, definitionsPath string) (*chains.Registry, error) {
	reg := chains.NewDefaultRegistry(logger)

	if definitionsPath == "" {
		return reg, nil
	}

	data, err := os.ReadFile(strings.Replace(definitionsPath, "file://", "", 1))
	if err != nil {
		return nil, fmt.Errorf("failed to read chain definitions: %w", err)
	}

	var definitions []chains.Definition
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("failed to parse chain definitions: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	for _, definition := range definitions {
		if err := validate.Struct(definition); err != nil {
			return nil, fmt.Errorf("invalid chain definition %q: %w", definition.ID, err)
		}
	}

	if err := reg.DefineAll(definitions); err != nil {
		return nil, err
	}

	logger.Info("Chains defined", "count", len(definitions))

	return reg, nil
}
