package config

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile sets environment variables from a .env file. Variables
// already present in the environment keep their values. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
