package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// loadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func loadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
