package llm

import (
	"context"
	"fmt"

	"OpsDiagnosis/internal/config"
)

// LLM 定义了工作流节点消费的最小推理接口：输入提示词，返回生成文本。
// 节点必须容忍该接口返回错误，并降级为固定的兜底回复。
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider 缺少 apiKey 配置")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
