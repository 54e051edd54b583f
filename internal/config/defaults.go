package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:             "~/.agribot/workspace",
			LogLevel:              "info",
			DefaultLanguage:       "en",
			DefaultLocation:       "Delhi, India",
			MaxConcurrentRequests: 5,
			HandlerTimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			Default:        "openai",
			TimeoutSeconds: 60,
			MaxRetries:     3,
			Completers: map[string]CompleterConfig{
				"openai": {
					Enabled:      true,
					APIBase:      "https://api.openai.com/v1",
					APIKey:       "${OPENAI_API_KEY}",
					DefaultModel: "gpt-4o-mini",
				},
				"ollama": {
					Enabled:      false,
					APIBase:      "http://localhost:11434",
					DefaultModel: "llama3.1:8b",
				},
			},
		},
		Handlers: HandlersConfig{
			Weather: WeatherConfig{
				Enabled:        true,
				APIBase:        "https://api.openweathermap.org/data/2.5",
				APIKey:         "${OPENWEATHER_API_KEY}",
				TimeoutSeconds: 10,
			},
			Market: MarketConfig{
				Enabled:            true,
				PortalURL:          "https://enam.gov.in/web/commodity/commodity-wise-price",
				TableURL:           "https://agmarknet.ceda.ashoka.edu.in/commodities",
				CacheTTLMinutes:    15,
				TierTimeoutSeconds: 15,
				NearbyLimit:        3,
				KnowledgeFile:      "~/.agribot/market.yaml",
				BrowserFallback:    false,
			},
			Finance: FinanceConfig{
				Enabled:     true,
				SchemesFile: "~/.agribot/schemes.yaml",
				SearchTopK:  5,
			},
			Pest: PestConfig{
				Enabled:        true,
				TimeoutSeconds: 20,
			},
			General: HandlerToggle{Enabled: true},
		},
		Memory: MemoryConfig{
			Enabled:                   true,
			DBPath:                    "~/.agribot/memory.db",
			MaxHistoryPerConversation: 100,
			RetentionDays:             365,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			CLI: CLIConfig{Enabled: true},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9091,
		},
	}
}
