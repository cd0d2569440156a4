package app

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dmscripts/internal/config"
	dmapi "dmscripts/sdk/go"
)

// API identifies the Data API endpoint a job talks to.
type API struct {
	Stage      string
	URL        string
	Token      string
	Production bool
}

// ResolveAPI picks the endpoint and token for a stage. Explicit overrides win
// over the stage config; the token falls back to the stage's token_env.
func ResolveAPI(cfg *config.Config, stage, urlOverride, tokenOverride string) (API, error) {
	api := API{Stage: stage, URL: urlOverride, Token: tokenOverride}
	if stage != "" {
		st, ok := cfg.Stages[stage]
		if !ok {
			return API{}, fmt.Errorf("unknown stage %q (configured: %s)", stage, strings.Join(cfg.StageNames(), ", "))
		}
		api.Production = st.Production
		if api.URL == "" {
			api.URL = st.APIURL
		}
		if api.Token == "" && st.TokenEnv != "" {
			api.Token = os.Getenv(st.TokenEnv)
		}
	}
	if api.URL == "" {
		return API{}, fmt.Errorf("api url not specified; use --stage or --api-url")
	}
	if api.Token == "" {
		return API{}, fmt.Errorf("api token not specified; use --api-token or the stage token_env")
	}
	return api, nil
}

// Client builds a Data API client for the resolved endpoint.
func (a API) Client() *dmapi.Client {
	return dmapi.New(a.URL, a.Token)
}

// NewLogger builds the console logger used by every job.
func NewLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.DisableStacktrace = true
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel accepts debug, info, warn and error; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}
