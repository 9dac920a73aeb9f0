package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// ModelManager routes generation to the primary provider and falls back to
// the secondary one on failure. A shared circuit breaker stops calls while
// both upstreams are unhealthy.
type ModelManager struct {
	primary        TextProvider
	fallback       TextProvider
	logger         *zap.Logger
	circuitBreaker *util.CircuitBreaker
}

type ModelManagerConfig struct {
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	EnableFallback bool
}

func NewModelManager(ctx context.Context, cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	model := cfg.GeminiModel
	if model == "" {
		model = constants.AIInputLimits.DefaultModel
	}

	var primary, fallback TextProvider

	gemini, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, model, logger)
	if err != nil {
		return nil, err
	}
	if gemini != nil {
		primary = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, relevance scoring will fail until configured")
	}

	if cfg.EnableFallback {
		if oa := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger); oa != nil {
			fallback = oa
			logger.Info("OpenAI fallback enabled", zap.String("model", cfg.OpenAIModel))
		}
	}

	return NewModelManagerWithProviders(primary, fallback, logger), nil
}

// NewModelManagerWithProviders wires explicit providers; either may be nil.
func NewModelManagerWithProviders(primary, fallback TextProvider, logger *zap.Logger) *ModelManager {
	mm := &ModelManager{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
	mm.circuitBreaker = util.NewCircuitBreaker(
		"llm",
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		constants.CircuitBreakerConfig.HealthCheckInterval,
		mm.healthCheckPing,
		logger,
	)
	return mm
}

// Configured reports whether the primary provider has credentials.
func (mm *ModelManager) Configured() bool {
	return mm.primary != nil
}

// Generate returns the raw model text. In JSON mode markdown code fences are stripped.
func (mm *ModelManager) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, *GenerateMetadata, error) {
	if mm.primary == nil {
		return "", nil, apperrors.NewConfigError("GEMINI_API_KEY is missing", "GEMINI_API_KEY")
	}

	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.Status()
		mm.logger.Error("AI service unavailable (circuit open)",
			zap.Int("failure_count", status.FailureCount),
		)
		return "", nil, apperrors.NewServiceError("AI service temporarily unavailable", "llm", "generate", nil)
	}

	result, primaryErr := mm.primary.Generate(ctx, prompt, opts)
	if primaryErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return mm.finish(result, opts, &GenerateMetadata{Provider: mm.primary.Name(), Model: result.Model})
	}

	if mm.fallback == nil {
		mm.recordFailure(primaryErr)
		return "", nil, primaryErr
	}

	mm.logger.Warn("Primary provider failed, trying fallback",
		zap.String("primary", mm.primary.Name()),
		zap.Error(primaryErr),
	)
	result, fallbackErr := mm.fallback.Generate(ctx, prompt, opts)
	if fallbackErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return mm.finish(result, opts, &GenerateMetadata{Provider: mm.fallback.Name(), Model: result.Model, UsedFallback: true})
	}

	mm.recordFailure(primaryErr)
	mm.recordFailure(fallbackErr)
	return "", nil, fmt.Errorf("%w (fallback: %v)", primaryErr, fallbackErr)
}

func (mm *ModelManager) finish(result ProviderResult, opts GenerateOptions, meta *GenerateMetadata) (string, *GenerateMetadata, error) {
	text := strings.TrimSpace(result.Text)
	if opts.JSONMode {
		text = StripCodeFence(text)
	}
	if text == "" {
		return "", nil, fmt.Errorf("%s returned empty response", meta.Provider)
	}
	return text, meta, nil
}

// StripCodeFence removes a surrounding ```json ... ``` block.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```json"))
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```"))
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}
	return cleaned
}

func (mm *ModelManager) recordFailure(err error) {
	if !isServiceFailure(err) {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if isRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

func (mm *ModelManager) healthCheckPing() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	primaryOK := mm.primary != nil && mm.primary.Ping(ctx)
	fallbackOK := mm.fallback != nil && mm.fallback.Ping(ctx)

	mm.logger.Info("LLM health check",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
	)
	return primaryOK || fallbackOK
}

func (mm *ModelManager) CircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.Status()
}

var (
	status5xxRegex  = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodeRegex = regexp.MustCompile(`"code":\s*(\d{3})`)
)

// isServiceFailure separates upstream outages (timeouts, 5xx, 429) from
// request-level errors, which must not trip the circuit.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode >= http.StatusInternalServerError || oaErr.StatusCode == http.StatusTooManyRequests
	}

	msg := err.Error()
	if strings.Contains(msg, "timeout") || isRateLimitError(err) {
		return true
	}
	if m := geminiCodeRegex.FindStringSubmatch(msg); len(m) > 1 {
		code, _ := strconv.Atoi(m[1])
		return code >= 500
	}
	return status5xxRegex.MatchString(msg)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode == http.StatusTooManyRequests
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}
