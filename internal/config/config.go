package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is loaded once at startup. Business tunables are passed into the
// pricing engine and OTP issuer at construction time; nothing reads the
// environment after startup.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`

	// Pricing
	TaxRate               float64 `mapstructure:"TAX_RATE"`
	FreeDeliveryThreshold float64 `mapstructure:"FREE_DELIVERY_THRESHOLD"`

	// Delivery OTP
	OTPLength        int `mapstructure:"OTP_LENGTH"`
	OTPExpiryMinutes int `mapstructure:"OTP_EXPIRY_MINUTES"`
	OTPMaxAttempts   int `mapstructure:"OTP_MAX_ATTEMPTS"`

	// Orders
	CancellationWindowMinutes int `mapstructure:"CANCELLATION_WINDOW_MINUTES"`

	// Notifications
	NotifyFromEmail string `mapstructure:"NOTIFY_FROM_EMAIL"`
	AWSRegion       string `mapstructure:"AWS_REGION"`

	StripeAPIKey string
}

// OTPExpiry returns the configured expiry as a duration.
func (c *Config) OTPExpiry() time.Duration {
	return time.Duration(c.OTPExpiryMinutes) * time.Minute
}

// CancellationWindow returns the configured window as a duration.
func (c *Config) CancellationWindow() time.Duration {
	return time.Duration(c.CancellationWindowMinutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TAX_RATE", 0.18)
	viper.SetDefault("FREE_DELIVERY_THRESHOLD", 500.0)
	viper.SetDefault("OTP_LENGTH", 4)
	viper.SetDefault("OTP_EXPIRY_MINUTES", 10)
	viper.SetDefault("OTP_MAX_ATTEMPTS", 3)
	viper.SetDefault("CANCELLATION_WINDOW_MINUTES", 10)
	viper.SetDefault("NOTIFY_FROM_EMAIL", "noreply@example.com")
	viper.SetDefault("AWS_REGION", "us-east-1")

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No .env file found.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	return &cfg, nil
}
