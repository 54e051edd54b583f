package llm

import (
	"fmt"
	"log/slog"
	"time"

	"agribot/internal/config"
	"agribot/internal/domain"
)

// Build constructs the completer stack from configuration. With a failover
// chain configured the returned completer tries each member in order;
// otherwise the default completer is returned directly.
func Build(cfg config.LLMConfig, logger *slog.Logger) (domain.Completer, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	build := func(name string) (domain.Completer, error) {
		cc, ok := cfg.Completers[name]
		if !ok {
			return nil, fmt.Errorf("unknown completer %q", name)
		}
		if !cc.Enabled {
			return nil, fmt.Errorf("completer %q is disabled", name)
		}
		switch name {
		case "openai":
			return NewOpenAI(OpenAIConfig{
				APIKey:     cc.APIKey,
				APIBase:    cc.APIBase,
				Model:      cc.DefaultModel,
				Timeout:    timeout,
				MaxRetries: cfg.MaxRetries,
				Logger:     logger,
			}), nil
		case "ollama":
			return NewOllama(OllamaConfig{
				APIBase:    cc.APIBase,
				Model:      cc.DefaultModel,
				Timeout:    timeout,
				MaxRetries: cfg.MaxRetries,
				Logger:     logger,
			}), nil
		default:
			// Unrecognized names get the OpenAI-compatible client; most
			// hosted APIs speak that protocol.
			return NewOpenAI(OpenAIConfig{
				APIKey:     cc.APIKey,
				APIBase:    cc.APIBase,
				Model:      cc.DefaultModel,
				Timeout:    timeout,
				MaxRetries: cfg.MaxRetries,
				Logger:     logger,
			}), nil
		}
	}

	if len(cfg.FailoverChain) > 0 {
		chain := make([]domain.Completer, 0, len(cfg.FailoverChain))
		for _, name := range cfg.FailoverChain {
			c, err := build(name)
			if err != nil {
				logger.Warn("skipping completer in failover chain", "completer", name, "error", err)
				continue
			}
			chain = append(chain, c)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("failover chain has no usable completer")
		}
		return NewFailover(chain, logger), nil
	}

	return build(cfg.Default)
}
