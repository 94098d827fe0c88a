package config

import (
	"errors"
	"fmt"
	"strings"

	"binance-signal-bot-go/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 SIGNALBOT_RSI_PERIOD
const EnvPrefix = "SIGNALBOT"

// ErrMissingCredentials 表示配置文件和环境变量中都缺少交易所或通知凭证
var ErrMissingCredentials = errors.New("missing credentials")

// credentialEnv 凭证配置项对应的环境变量（带前缀的形式之外）
var credentialEnv = map[string]string{
	"binance.api_key":    "BINANCE_API_KEY",
	"binance.secret_key": "BINANCE_SECRET_KEY",
	"telegram.token":     "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":   "TELEGRAM_CHAT_ID",
}

// LoadConfig 从指定路径加载JSON配置文件，叠加环境变量并校验
func LoadConfig(path string) (*models.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range credentialEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy", "")
	v.SetDefault("rsi_period", 14)
	v.SetDefault("atr_period", 14)
	v.SetDefault("sl_multiplier", 1.5)
	v.SetDefault("tp_multiplier", 2.0)
	v.SetDefault("candle_interval", "1h")
	v.SetDefault("kline_limit", 100)
	v.SetDefault("refresh_interval_sec", 60)
	v.SetDefault("ledger_path", "trades.db")
	v.SetDefault("export_path", "trades.csv")
	v.SetDefault("test_mode", false)
	v.SetDefault("position_store_path", "")
	v.SetDefault("reconcile_on_start", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("requests_per_second", 5)
	v.SetDefault("paper_trading", false)
	v.SetDefault("paper_slippage_rate", 0.0005)

	// 凭证没有默认值，但必须是已知键，环境变量才能覆盖
	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.secret_key", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_wait_sec", 1)
	v.SetDefault("retry.max_wait_sec", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file", "logs/signal_bot.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)
}

func normalize(cfg *models.Config) {
	for i := range cfg.Symbols {
		cfg.Symbols[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbols[i].Symbol))
	}
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
}

// Validate 先检查凭证（缺失时返回 ErrMissingCredentials），再检查结构体约束
func Validate(cfg *models.Config) error {
	var missing []string
	if cfg.Binance.APIKey == "" {
		missing = append(missing, "BINANCE_API_KEY")
	}
	if cfg.Binance.SecretKey == "" {
		missing = append(missing, "BINANCE_SECRET_KEY")
	}
	if cfg.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if seen[s.Symbol] {
			return fmt.Errorf("invalid config: symbol %s configured twice", s.Symbol)
		}
		seen[s.Symbol] = true
	}
	return nil
}
