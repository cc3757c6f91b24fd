package ir

// SystemMessageStrategy describes how a backend expects system prompts to
// be conveyed, used by the capability normalizer (pkg/capability).
type SystemMessageStrategy string

const (
	SystemInMessages          SystemMessageStrategy = "in-messages"
	SystemSeparateParameter   SystemMessageStrategy = "separate-parameter"
	SystemPrependedToFirstUser SystemMessageStrategy = "prepended-to-first-user"
	SystemUnsupported         SystemMessageStrategy = "unsupported"
)

// Capabilities is the immutable description an adapter exposes of what it
// supports, consulted by the Bridge and the capability normalizer.
type Capabilities struct {
	Streaming   bool
	MultiModal  bool
	Tools       bool

	MaxContextTokens int

	SystemMessageStrategy          SystemMessageStrategy
	SupportsMultipleSystemMessages bool

	SupportsTemperature      bool
	SupportsTopP             bool
	SupportsTopK             bool
	SupportsSeed             bool
	SupportsFrequencyPenalty bool
	SupportsPresencePenalty  bool

	MaxStopSequences int
}

// AdapterMetadata is the immutable identity every Frontend and Backend
// exposes.
type AdapterMetadata struct {
	Name         string
	Version      string
	Provider     string
	Capabilities Capabilities
}
