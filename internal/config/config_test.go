package config_test

import (
	"testing"
	"time"

	"cardapio/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper(t *testing.T) {
	tests := []struct {
		name      string
		values    map[string]any
		wantError string
		check     func(t *testing.T, cfg config.Config)
	}{
		{
			name: "defaults: ok",
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, config.BackendDatabase, cfg.Backend)
				assert.Equal(t, "sqlite", cfg.DatabaseDriver)
				assert.Equal(t, 15*time.Second, cfg.OrderStepTimeout)
				assert.True(t, cfg.OrderCompensate)
				assert.Equal(t, "BRL", cfg.Currency.String())
				assert.Equal(t, "menu-images", cfg.MenuImagesBucket)
				assert.Equal(t, "@every 1m", cfg.SessionSweepSchedule)
			},
		},
		{
			name: "supabase backend with credentials: ok",
			values: map[string]any{
				"BACKEND":             "Supabase",
				"SUPABASE_URL":        "https://project.supabase.co",
				"SUPABASE_ANON_KEY":   "anon",
				"SUPABASE_JWT_SECRET": "secret",
			},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, config.BackendSupabase, cfg.Backend)
				assert.Equal(t, "secret", cfg.TokenSecret())
			},
		},
		{
			name:      "supabase backend without url: error",
			values:    map[string]any{"BACKEND": "supabase", "SUPABASE_ANON_KEY": "anon", "SUPABASE_JWT_SECRET": "s"},
			wantError: "SUPABASE_URL is required",
		},
		{
			name:      "unknown backend: error",
			values:    map[string]any{"BACKEND": "firebase"},
			wantError: `BACKEND must be database or supabase, got "firebase"`,
		},
		{
			name:      "invalid currency: error",
			values:    map[string]any{"CURRENCY": "XXXX"},
			wantError: "CURRENCY[XXXX] is not valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromViper(newViper(tt.values))
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
