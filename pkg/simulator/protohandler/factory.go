package protohandler

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Build constructs the concrete Handler for kind from its opaque
// protocol_config JSON (spec.md §3 SimulatorInfo.protocol_config).
func Build(kind Kind, rawConfig json.RawMessage, log *slog.Logger) (Handler, error) {
	switch kind {
	case KindSceneLoader:
		return NewSceneLoader(log), nil

	case KindModbus:
		var cfg struct {
			Slaves []SlaveConfig `json:"slaves"`
		}
		if len(rawConfig) > 0 {
			if err := json.Unmarshal(rawConfig, &cfg); err != nil {
				return nil, fmt.Errorf("modbus: invalid protocol_config: %w", err)
			}
		}
		return NewModbus(cfg.Slaves), nil

	case KindCustom:
		var cfg CustomConfig
		if len(rawConfig) > 0 {
			if err := json.Unmarshal(rawConfig, &cfg); err != nil {
				return nil, fmt.Errorf("custom: invalid protocol_config: %w", err)
			}
		}
		return NewCustom(cfg), nil

	default:
		return nil, fmt.Errorf("unknown protocol kind %q", kind)
	}
}
