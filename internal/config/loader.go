package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Secret reference prefixes understood by ResolveSecrets.
const (
	secretsManagerPrefix = "aws-sm://"
	ssmPrefix            = "aws-ssm://"
)

// LoadConfig loads configuration from YAML with environment expansion.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolveSecrets replaces aws-sm:// and aws-ssm:// references in secret
// fields with their resolved values. Loaders are constructed lazily so a
// config with only literal secrets never touches AWS.
func (c *Config) ResolveSecrets() error {
	var (
		sm  *AWSSecretsLoader
		ssm *SSMLoader
	)

	resolve := func(val string) (string, error) {
		switch {
		case strings.HasPrefix(val, secretsManagerPrefix):
			if sm == nil {
				var err error
				if sm, err = NewAWSSecretsLoader(); err != nil {
					return "", err
				}
			}
			return sm.GetSecret(strings.TrimPrefix(val, secretsManagerPrefix))
		case strings.HasPrefix(val, ssmPrefix):
			if ssm == nil {
				var err error
				if ssm, err = NewSSMLoader(); err != nil {
					return "", err
				}
			}
			return ssm.GetParameter(strings.TrimPrefix(val, ssmPrefix), true)
		default:
			return val, nil
		}
	}

	var err error
	if c.Telemetry.SigningSecret, err = resolve(c.Telemetry.SigningSecret); err != nil {
		return fmt.Errorf("resolve telemetry signing secret: %w", err)
	}
	if c.Session.SigningKey, err = resolve(c.Session.SigningKey); err != nil {
		return fmt.Errorf("resolve session signing key: %w", err)
	}
	return nil
}

// Validate rejects configurations the process must not start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telemetry.SigningSecret) == "" {
		return errors.New("config: telemetry signing secret is required")
	}
	if strings.TrimSpace(c.Session.SigningKey) == "" {
		return errors.New("config: session signing key is required")
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	return nil
}
