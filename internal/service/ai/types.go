package ai

// ModelPreset selects sampling parameters.
type ModelPreset string

const (
	PresetPrecise  ModelPreset = "precise"
	PresetBalanced ModelPreset = "balanced"
)

type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string
}

type OpenAIModelConfig struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
}

// GenerateOptions tunes one generation. Temperature overrides the preset when set.
type GenerateOptions struct {
	Model       string
	Preset      ModelPreset
	Temperature *float32
	JSONMode    bool
}

func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.2,
			TopP:            0.9,
			TopK:            20,
			MaxOutputTokens: 1024,
		}
	default:
		return ModelConfig{
			Temperature:     0.4,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	}
}

func GetOpenAIPresetConfig(preset ModelPreset) OpenAIModelConfig {
	switch preset {
	case PresetPrecise:
		return OpenAIModelConfig{Temperature: 0.2, MaxTokens: 1024, TopP: 0.9}
	default:
		return OpenAIModelConfig{Temperature: 0.4, MaxTokens: 2048, TopP: 0.95}
	}
}
