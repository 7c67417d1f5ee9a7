package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	plain map[string]string
	json  map[string]map[string]string
}

func (f *fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := f.plain[name]; ok {
		return v, nil
	}
	return "", errors.New("secret not found")
}

func (f *fakeSecrets) GetJSONSecret(_ context.Context, name string, out interface{}) error {
	v, ok := f.json[name]
	if !ok {
		return errors.New("secret not found")
	}
	b, _ := json.Marshal(v)
	return json.Unmarshal(b, out)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("LEDGER_TTL", "")
	t.Setenv("CURRENCY", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := configFromEnv()
	assert.Equal(t, "memory", cfg.LedgerBackend)
	assert.Equal(t, 7*24*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, "BDT", cfg.Currency)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("LEDGER_TTL", "48h")
	t.Setenv("ALLOWED_ORIGINS", "https://myseetara.com/, https://admin.myseetara.com")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("INVALID_VALUE_POLICY", "fire_zero")

	cfg := configFromEnv()
	assert.Equal(t, "redis", cfg.LedgerBackend)
	assert.Equal(t, 48*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, []string{"https://myseetara.com", "https://admin.myseetara.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "fire_zero", cfg.InvalidValuePolicy)
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("LEDGER_TTL", "soon")
	assert.Equal(t, time.Hour, getDuration("LEDGER_TTL", time.Hour))
	t.Setenv("LEDGER_TTL", "-5m")
	assert.Equal(t, time.Hour, getDuration("LEDGER_TTL", time.Hour))
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	complete := func() *Config {
		c := configFromEnv()
		c.DB.User, c.DB.Password, c.DB.Name, c.DB.Host = "u", "p", "seetara", "db"
		c.LedgerBackend = "memory"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "complete", mutate: func(*Config) {}},
		{name: "missing password", mutate: func(c *Config) { c.DB.Password = "" }, wantErr: "database config incomplete"},
		{name: "sqlite needs no credentials", mutate: func(c *Config) { c.DB.Driver = "sqlite"; c.DB.User = "" }},
		{name: "redis without url", mutate: func(c *Config) { c.LedgerBackend = "redis"; c.RedisURL = "" }, wantErr: "REDIS_URL"},
		{name: "redis with url", mutate: func(c *Config) { c.LedgerBackend = "redis"; c.RedisURL = "redis://localhost:6379/0" }},
		{name: "unknown backend", mutate: func(c *Config) { c.LedgerBackend = "etcd" }, wantErr: "unknown LEDGER_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := complete()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{CAPIAccessToken: "env-token", JWTSecret: "env-jwt"}
	cfg.DB.User, cfg.DB.Host = "env-user", "env-host"

	applySecrets(context.Background(), cfg, &fakeSecrets{
		plain: map[string]string{"seetara/CAPI_ACCESS_TOKEN": "sm-token"},
		json: map[string]map[string]string{
			"seetara/DB_CREDENTIALS": {"POSTGRES_USER": "sm-user", "POSTGRES_PASSWORD": "sm-pass"},
		},
	})

	assert.Equal(t, "sm-user", cfg.DB.User)
	assert.Equal(t, "sm-pass", cfg.DB.Password)
	assert.Equal(t, "env-host", cfg.DB.Host, "keys absent from the secret keep the env value")
	assert.Equal(t, "sm-token", cfg.CAPIAccessToken)
	assert.Equal(t, "env-jwt", cfg.JWTSecret)
}

func TestPixelPreview_FiresOncePerSession(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CURRENCY", "BDT")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pixel", "preview", "--views", "2",
		"--url", "https://myseetara.com/order-success?order_id=WEB1700000000123A1B2C3&type=buy&total=1800&product=Leather+Tote"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)

	var call struct {
		Event   string `json:"event"`
		Params  struct {
			Value    float64 `json:"value"`
			Currency string  `json:"currency"`
		} `json:"params"`
		Options struct {
			EventID string `json:"eventID"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &call))
	assert.Equal(t, "Purchase", call.Event)
	assert.Equal(t, 1800.0, call.Params.Value)
	assert.Equal(t, "BDT", call.Params.Currency)
	assert.Equal(t, "WEB1700000000123A1B2C3", call.Options.EventID)
}

func TestPixelPreview_InvalidTotalSuppressed(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pixel", "preview", "--invalid-value-policy", "suppress",
		"--url", "/order-success?order_id=WEB1700000000123A1B2C3&type=buy&total=abc"})
	require.NoError(t, cmd.Execute())
	assert.Empty(t, out.String())
}

func TestPixelPreview_FallsBackToPendingOrder(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pixel", "preview", "--url", "https://myseetara.com/order-success",
		"--pending-order-id", "WEB1700000000456D4E5F6", "--pending-type", "buy", "--pending-total", "2400"})
	require.NoError(t, cmd.Execute())

	var call struct {
		Params struct {
			Value float64 `json:"value"`
		} `json:"params"`
		Options struct {
			EventID string `json:"eventID"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &call))
	assert.Equal(t, 2400.0, call.Params.Value)
	assert.Equal(t, "WEB1700000000456D4E5F6", call.Options.EventID)
}

func TestPixelPreview_RejectsBadPendingOrderID(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"pixel", "preview", "--url", "/order-success", "--pending-order-id", "bad id"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pending-order-id")
}

func TestRelayReplay_RejectsBadOrderID(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"relay", "replay", "--order-id", "not an id"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--order-id")
}
