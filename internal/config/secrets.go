package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	return filepath.Join(dataHome(), "contec", "secrets.json")
}

func readSecret(path, service, account string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func writeSecret(path, service, account, value string) error {
	var secrets map[string]map[string]string

	data, err := os.ReadFile(path)
	if err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out, 0o600)
}

// SetTrainerPassword stores the trainer secret (plain or bcrypt hash) in the
// secrets file. CONTEC_TRAINER_PASSWORD still takes precedence.
func SetTrainerPassword(secret string) error {
	return writeSecret(secretsFilePath(), "contec", "trainer_password", secret)
}

// SecretsPath returns the secrets file location for display.
func SecretsPath() string { return secretsFilePath() }
