package config

import (
	"crypto/rand"
	"log"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	ServerPort    string
	DBPath        string
	SessionSecret []byte
	BcryptCost    int
	Debug         bool
}

// Load reads configuration from VOTELYNCH_* environment variables with
// sensible defaults. The session secret is generated fresh on every
// start unless provided, which invalidates sessions across restarts.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("VOTELYNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", ":8080")
	v.SetDefault("db-path", "./votelynch.db")
	v.SetDefault("bcrypt-cost", bcrypt.DefaultCost)
	v.SetDefault("debug", false)

	secret := []byte(v.GetString("session-secret"))
	if len(secret) == 0 {
		secret = generateSessionSecret()
	}

	return &Config{
		ServerPort:    v.GetString("port"),
		DBPath:        v.GetString("db-path"),
		SessionSecret: secret,
		BcryptCost:    v.GetInt("bcrypt-cost"),
		Debug:         v.GetBool("debug"),
	}
}

func generateSessionSecret() []byte {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate session secret:", err)
	}
	return bytes
}
