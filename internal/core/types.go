package core

// Config represents the complete pandabot configuration structure
type Config struct {
	Framework    FrameworkConfig         `yaml:"framework"`
	Buckets      map[string]BucketConfig `yaml:"buckets"`
	Help         HelpConfig              `yaml:"help"`
	Bots         map[string]BotConfig    `yaml:"bots"`
	Dispatch     DispatchConfig          `yaml:"dispatch"`
	StatusServer StatusServerConfig      `yaml:"status_server"`
	Logging      LoggingConfig           `yaml:"logging"`
}

// FrameworkConfig controls how messages are recognised as commands
type FrameworkConfig struct {
	Prefixes        []string `yaml:"prefixes"`
	OnMention       bool     `yaml:"on_mention"`
	AllowWhitespace bool     `yaml:"allow_whitespace"`
	Delimiters      []string `yaml:"delimiters"`
	Owners          []string `yaml:"owners"` // User ids allowed to run owner-only commands
}

// BucketConfig represents a named rate-limit bucket
type BucketConfig struct {
	Delay  string `yaml:"delay"`  // Minimum time between two uses by one user (e.g., "5s")
	Window string `yaml:"window"` // Window for limit (e.g., "30s")
	Limit  int    `yaml:"limit"`  // Uses per window, 0 for no limit
}

// HelpConfig represents the help command texts and filter behaviour
type HelpConfig struct {
	IndividualCommandTip string `yaml:"individual_command_tip"`
	CommandNotFoundText  string `yaml:"command_not_found_text"` // "{}" is replaced by the name
	SuggestionText       string `yaml:"suggestion_text"`        // "{}" is replaced by the suggestion
	LackingPermissions   string `yaml:"lacking_permissions"`    // hide, strike or nothing
	LackingRole          string `yaml:"lacking_role"`           // hide, strike or nothing
}

// BotConfig represents bot configuration
type BotConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`
	Token             string `yaml:"token"`
	ChannelID         string `yaml:"channel_id"`         // For Discord: default channel for plain sends
	ShardCount        int    `yaml:"shard_count"`        // Discord: gateway shards (default: 1)
	EncryptKey        string `yaml:"encrypt_key"`        // Feishu: event encryption key (optional)
	VerificationToken string `yaml:"verification_token"` // Feishu: verification token (optional)
}

// DispatchConfig sizes the dispatch worker pool
type DispatchConfig struct {
	Workers   int `yaml:"workers"`    // Concurrent dispatch workers (default: 4)
	QueueSize int `yaml:"queue_size"` // Buffered inbound messages (default: 100)
}

// StatusServerConfig represents the HTTP status server configuration
type StatusServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
