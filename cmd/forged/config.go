package main

import (
	"fmt"
	"os"
	"strconv"

	"forged/internal/config"
)

// loadConfig reads the optional config file, then applies FORGED_* env
// overrides, then fills defaults. Command flags are applied by the caller
// before validation.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func applyEnv(cfg *config.Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"FORGED_ADDR":           &cfg.Addr,
		"FORGED_LOG_LEVEL":      &cfg.LogLevel,
		"FORGED_MODELS_DIR":     &cfg.ModelsDir,
		"FORGED_BACKEND":        &cfg.Runtime.Backend,
		"FORGED_BRIDGE_URL":     &cfg.Runtime.BridgeURL,
		"FORGED_BRIDGE_API_KEY": &cfg.Runtime.BridgeAPIKey,
		"FORGED_HISTORY_PATH":   &cfg.History.Path,
		"FORGED_PROC_ROOT":      &cfg.Monitor.ProcRoot,
	}
	for k, dst := range str {
		if v, ok := lookup(k); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("FORGED_DEVICE_INDEX"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORGED_DEVICE_INDEX: %w", err)
		}
		cfg.DeviceIndex = n
	}
	if v, ok := lookup("FORGED_INFER_TIMEOUT"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FORGED_INFER_TIMEOUT: %w", err)
		}
		cfg.HTTP.InferTimeoutSeconds = n
	}
	if v, ok := lookup("FORGED_CORS_ORIGINS"); ok && v != "" {
		cfg.HTTP.CORSEnabled = true
		cfg.HTTP.CORSOrigins = splitCSV(v)
	}
	return nil
}
