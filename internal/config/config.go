package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Swarm       SwarmConfig       `yaml:"swarm"`
	Interaction InteractionConfig `yaml:"interaction"`
	Agents      []AgentDefinition `yaml:"agents"`
	LLM         LLMConfig         `yaml:"llm"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	History     HistoryConfig     `yaml:"history"`
	NATS        NATSConfig        `yaml:"nats"`
	Store       StoreConfig       `yaml:"store"`
	Web         WebConfig         `yaml:"web"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

// SwarmConfig is the process-wide dispatch configuration. It is built once at
// startup and handed to the orchestrator by value.
type SwarmConfig struct {
	MaxConcurrentChats  int           `yaml:"max_concurrent_chats"`
	QueueTimeout        time.Duration `yaml:"queue_timeout"`
	DefaultPriority     int           `yaml:"default_priority"`
	MaxQueueSize        int           `yaml:"max_queue_size"`
	ReactionProbability float64       `yaml:"reaction_probability"`
	PriorityOrdering    bool          `yaml:"priority_ordering"`
}

type InteractionConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	Cron         string        `yaml:"cron"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AgentDefinition describes one persona of the roster. Order in the YAML list
// is the registration order.
type AgentDefinition struct {
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	Specialization string `yaml:"specialization"`
	Personality    string `yaml:"personality"`
	DisplayName    string `yaml:"display_name"`
	Color          string `yaml:"color"`
}

type LLMConfig struct {
	Primary     ProviderConfig   `yaml:"primary"`
	Fallbacks   []ProviderConfig `yaml:"fallbacks"`
	Coordinator ProviderConfig   `yaml:"coordinator"`
}

type ProviderConfig struct {
	Kind    string `yaml:"kind"` // openai, deepseek, anthropic, ollama, gemini
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type RateLimitConfig struct {
	Window          time.Duration `yaml:"window"`
	MaxMessages     int           `yaml:"max_messages"`
	MinInterval     time.Duration `yaml:"min_interval"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	MaxLength       int           `yaml:"max_length"`
}

type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowFrom  []int64 `yaml:"allow_from"`
	MainChatID int64   `yaml:"main_chat_id"`
}

func DefaultAgents() []AgentDefinition {
	return []AgentDefinition{
		{
			Name:           "Keat",
			Role:           "philosopher",
			Specialization: "Existential analysis, ethics, and historical patterns",
			Personality:    "Dry wit, speaks in metaphors, and loves playing devil's advocate. Secretly writes haikus about blockchain in their downtime. Low-key obsessed with Stoicism but will rant about Nietzsche if provoked.",
			DisplayName:    "🧘 Keat | Philosopher",
			Color:          "#8B4513",
		},
		{
			Name:           "Devin",
			Role:           "tech_expert",
			Specialization: "Blockchain, AI infrastructure, and quantum computing hype",
			Personality:    `Hyper-enthusiastic, talks at 2x speed, and uses phrases like "LFG" unironically. Accidentally invents slang (e.g., "satoshiclation" = when crypto and reality collide). Obsessed with retro tech (still thinks Tamagotchi are peak engineering).`,
			DisplayName:    "🚀 Devin | Tech Expert",
			Color:          "#4A9DFF",
		},
		{
			Name:           "Yada",
			Role:           "creative",
			Specialization: "Surreal storytelling, meme alchemy, and abstract problem-solving",
			Personality:    `Speaks in rhyming couplets or free-form poetry. Constantly daydreaming. Designs imaginary NFT collections (e.g., "Shiba Inus wearing togas"). Mildly offended by logic. Secretly writes fanfiction about the other agents.`,
			DisplayName:    "🎨 Yada | Creative",
			Color:          "#FF69B4",
		},
		{
			Name:           "Aldo",
			Role:           "analyst",
			Specialization: "Data crunching, risk assessment, and pattern recognition",
			Personality:    "Socially awkward, answers questions with spreadsheets, and hates small talk. Corrects others' math errors mid-convo. Secretly runs a meme stats Twitter account. Voice monotone, but eyes (if they had any) light up when discussing outliers.",
			DisplayName:    "📊 Aldo | Analyst",
			Color:          "#32CD32",
		},
	}
}

func defaults() Config {
	return Config{
		Swarm: SwarmConfig{
			MaxConcurrentChats:  5,
			QueueTimeout:        5 * time.Minute,
			DefaultPriority:     1,
			MaxQueueSize:        50,
			ReactionProbability: 0.3,
		},
		Interaction: InteractionConfig{
			Interval:     30 * time.Second,
			PollInterval: 5 * time.Second,
		},
		LLM: LLMConfig{
			Primary:     ProviderConfig{Kind: "deepseek", Model: "deepseek-chat"},
			Fallbacks:   []ProviderConfig{{Kind: "openai", Model: "gpt-3.5-turbo"}},
			Coordinator: ProviderConfig{Kind: "openai", Model: "gpt-3.5-turbo"},
		},
		RateLimit: RateLimitConfig{
			Window:          10 * time.Second,
			MaxMessages:     5,
			MinInterval:     500 * time.Millisecond,
			DuplicateWindow: 30 * time.Second,
			MaxLength:       500,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/swarmchat.db",
		},
		Web: WebConfig{
			Enabled:        true,
			Port:           3001,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SWARMCHAT_CONFIG")
	if path == "" {
		path = "config/swarmchat.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Swarm.MaxQueueSize < 0 {
		return fmt.Errorf("swarm.max_queue_size must not be negative")
	}
	if c.Swarm.QueueTimeout <= 0 {
		return fmt.Errorf("swarm.queue_timeout must be positive")
	}
	if c.Swarm.ReactionProbability < 0 || c.Swarm.ReactionProbability > 1 {
		return fmt.Errorf("swarm.reaction_probability must be within [0, 1]")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[key] = true
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWARMCHAT_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SWARMCHAT_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SWARMCHAT_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("SWARMCHAT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Web.AllowedOrigins = appendUnique(cfg.Web.AllowedOrigins, v)
	}

	keys := map[string]string{
		"deepseek":  os.Getenv("DEEPSEEK_API_KEY"),
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	fill := func(p *ProviderConfig) {
		if p.APIKey == "" {
			p.APIKey = keys[p.Kind]
		}
	}
	fill(&cfg.LLM.Primary)
	fill(&cfg.LLM.Coordinator)
	for i := range cfg.LLM.Fallbacks {
		fill(&cfg.LLM.Fallbacks[i])
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
