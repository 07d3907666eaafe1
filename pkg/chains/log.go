package chains

import (
	"context"
	"log/slog"

	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/dukex/graphroute/pkg/template"
)

func NewLogChainFactory() *LogChainFactory {
	return &LogChainFactory{}
}

type LogChainFactory struct{}

func (*LogChainFactory) ID() string {
	return "log"
}

func (f *LogChainFactory) Create(config map[string]any) (protocol.Chain, error) {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	return &LogChain{message: message, level: level}, nil
}

// LogChain logs a templated message.
type LogChain struct {
	message string
	level   string
}

func (c *LogChain) Run(ctx context.Context, doc *protocol.DocumentContext, logger *slog.Logger) error {
	message := c.message
	if message == "" {
		message = "Chain executed"
	}

	if template.NeedsTemplating(message) {
		rendered, err := template.RenderDocument(message, doc)
		if err != nil {
			return err
		}

		if s, ok := rendered.(string); ok {
			message = s
		} else {
			logger = logger.With("value", rendered)
		}
	}

	var level slog.Level

	switch c.level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger.Log(ctx, level, message)

	return nil
}
