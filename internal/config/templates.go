package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders DefaultConfig in the file layout Load accepts.
func Template() (string, error) {
	def := DefaultConfig()
	var out fileConfig
	out.Host.ID = def.HostID
	out.Host.Addr = def.Addr
	out.Host.Token = def.Token
	out.Host.TLSCert = def.TLSCert
	out.Host.TLSKey = def.TLSKey
	out.Storage.Driver = def.Storage.Driver
	out.Storage.Path = def.Storage.Path
	out.Codec = def.Codec
	out.Persist.Retries = def.Persist.Retries
	out.Persist.InitialDelay = def.Persist.InitialDelay.String()
	out.Persist.MaxDelay = def.Persist.MaxDelay.String()
	out.Persist.Jitter = def.Persist.Jitter

	data, err := toml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("config: render template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
