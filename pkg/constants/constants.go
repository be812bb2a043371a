package constants

import "time"

// Message length limits for different platforms
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
	// MaxFeishuMessageLength is Feishu's message character limit
	MaxFeishuMessageLength = 20000
	// MaxDingTalkMessageLength is DingTalk's message character limit
	MaxDingTalkMessageLength = 20000
)

// Timeouts and delays
const (
	// DefaultPollTimeout is the timeout for Telegram long polling
	DefaultPollTimeout = 60 * time.Second
	// ConnectionSettleDelay is how long websocket-based adapters wait after Start
	ConnectionSettleDelay = 2 * time.Second
	// ShutdownTimeout bounds the graceful shutdown of the status server
	ShutdownTimeout = 5 * time.Second
	// StatusRequestTimeout is the HTTP client timeout used by `pandabot status`
	StatusRequestTimeout = 5 * time.Second
	// BucketPruneInterval is how often idle rate-limit state is dropped
	BucketPruneInterval = time.Minute
)

// Dispatch defaults
const (
	// MessageChannelBufferSize is the buffer size for the inbound message channel
	MessageChannelBufferSize = 100
	// DefaultDispatchWorkers is the number of goroutines dispatching commands
	DefaultDispatchWorkers = 4
	// MaxCommandInputLength bounds the content the framework will tokenize
	MaxCommandInputLength = 10000
	// MaxSuggestionDistance is the largest edit distance help will suggest
	MaxSuggestionDistance = 2
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)
