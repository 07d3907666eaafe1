// Package catalog keeps the route models instances are started from.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var modelSchema string

var (
	ErrModelNotFound = errors.New("route model not found")
	ErrInvalidModel  = errors.New("invalid route model")
)

// ModelError carries the id of the model an operation failed for.
type ModelError struct {
	Op      string
	ModelID string
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s model %s: %v", e.Op, e.ModelID, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Catalog is an in-memory registry of validated route models.
type Catalog struct {
	mu        sync.RWMutex
	models    map[string]*models.GraphRoute
	logger    *slog.Logger
	schema    *gojsonschema.Schema
	validator *validator.Validate
}

func New(logger *slog.Logger) (*Catalog, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(modelSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile route model schema: %w", err)
	}

	return &Catalog{
		models:    make(map[string]*models.GraphRoute),
		logger:    logger.With("module", "catalog"),
		schema:    schema,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// LoadDir registers every *.json model found in dir.
func (c *Catalog) LoadDir(ctx context.Context, dir string) error {
	dir = strings.Replace(dir, "file://", "", 1)

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return fmt.Errorf("failed to list models in %s: %w", dir, err)
	}

	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(os.DirFS(dir), file)
		if err != nil {
			return fmt.Errorf("failed to read model %s: %w", file, err)
		}

		model, err := c.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		if err := c.Register(model); err != nil {
			return err
		}

		c.logger.InfoContext(ctx, "Loaded route model", "model_id", model.ID, "file", file)
	}

	return nil
}

// Decode validates a JSON document against the model schema and decodes it.
func (c *Catalog) Decode(data []byte) (*models.GraphRoute, error) {
	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	if !result.Valid() {
		var messages []string
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return nil, fmt.Errorf("%w: JSON schema validation failed: %s", ErrInvalidModel, strings.Join(messages, "; "))
	}

	var model models.GraphRoute
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	return &model, nil
}

// Register adds or replaces a model after checking its graph.
func (c *Catalog) Register(model *models.GraphRoute) error {
	if model.ID == "" {
		return &ModelError{Op: "register", ModelID: model.Name, Err: fmt.Errorf("%w: missing id", ErrInvalidModel)}
	}

	if err := c.validator.Struct(model); err != nil {
		return &ModelError{Op: "register", ModelID: model.ID, Err: fmt.Errorf("%w: %w", ErrInvalidModel, err)}
	}

	if err := model.Validate(); err != nil {
		return &ModelError{Op: "register", ModelID: model.ID, Err: fmt.Errorf("%w: %w", ErrInvalidModel, err)}
	}

	if len(model.StartNodes()) == 0 {
		c.logger.Warn("Route model has no start node", "model_id", model.ID)
	}

	stored := model.Clone()
	stored.State = ""

	c.mu.Lock()
	c.models[model.ID] = stored
	c.mu.Unlock()

	return nil
}

// Model returns a copy of the model registered under id.
func (c *Catalog) Model(_ context.Context, id string) (*models.GraphRoute, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	model, ok := c.models[id]
	if !ok {
		return nil, &ModelError{Op: "get", ModelID: id, Err: ErrModelNotFound}
	}

	return model.Clone(), nil
}

// List returns copies of every model ordered by id.
func (c *Catalog) List(_ context.Context) []*models.GraphRoute {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]*models.GraphRoute, 0, len(c.models))
	for _, model := range c.models {
		list = append(list, model.Clone())
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	return list
}
