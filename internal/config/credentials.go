package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ConduitToken returns the API token stored in an arcrc file for the install
// at conduitURI. A missing file or host yields an empty token.
func ConduitToken(arcrcPath, conduitURI string) (string, error) {
	if conduitURI == "" {
		return "", nil
	}
	f, err := os.Open(arcrcPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", arcrcPath, err)
	}
	defer f.Close()

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigType("json")
	if err := v.ReadConfig(f); err != nil {
		return "", fmt.Errorf("parse %s: %w", arcrcPath, err)
	}

	want := normalizeHost(conduitURI)
	for host, entry := range v.GetStringMap("hosts") {
		if normalizeHost(host) != want {
			continue
		}
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if token, ok := fields["token"].(string); ok {
			return token, nil
		}
	}
	return "", nil
}

// normalizeHost reduces "https://phab.example.com/api/" and
// "https://phab.example.com" to the same key
func normalizeHost(uri string) string {
	uri = strings.ToLower(strings.TrimSpace(uri))
	uri = strings.TrimSuffix(uri, "/")
	uri = strings.TrimSuffix(uri, "/api")
	return strings.TrimSuffix(uri, "/")
}
