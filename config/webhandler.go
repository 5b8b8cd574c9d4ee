package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const maxRequestBody = 64 << 10

// ConfigHandler serves the runtime subset of cfile. GET returns it as
// JSON. POST merges a JSON runtime subset into cfile and replaces the file
// in one rename, which is what makes Watch pick up the change.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			conf, err := ReadConfig(cfile)
			if err != nil {
				slog.Error("Failed to read config file for API", "error", err)
				writeJSON(w, http.StatusInternalServerError, apiError{"failed to read configuration"})
				return
			}
			writeJSON(w, http.StatusOK, conf.Runtime())
		case http.MethodPost:
			status, err := updateConfig(cfile, http.MaxBytesReader(w, r.Body, maxRequestBody))
			if err != nil {
				slog.Warn("Rejected config update", "status", status, "error", err)
				writeJSON(w, status, apiError{err.Error()})
				return
			}
			slog.Info("Updated config file through API", "file", cfile)
			writeJSON(w, http.StatusOK, apiStatus{"updated"})
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, apiError{"method not allowed"})
		}
	}
}

type apiError struct {
	Error string `json:"error"`
}

type apiStatus struct {
	Status string `json:"status"`
}

// updateConfig returns the HTTP status to answer with along with the
// error.
func updateConfig(cfile string, body io.Reader) (int, error) {
	var runtime RuntimeConfig
	if err := json.NewDecoder(body).Decode(&runtime); err != nil {
		return http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}

	full, err := ReadConfig(cfile)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	full.ApplyRuntime(runtime)
	if err := full.Validate(); err != nil {
		return http.StatusBadRequest, fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(full)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("can't marshal config: %w", err)
	}
	if err := replaceFile(cfile, data); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}

// replaceFile writes data next to cfile and renames it into place, so
// readers never see a partial file.
func replaceFile(cfile string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(cfile), ".config-*.yml")
	if err != nil {
		return fmt.Errorf("can't create temporary config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("can't write config file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("can't write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("can't write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), cfile); err != nil {
		return fmt.Errorf("can't replace config file: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode API response", "error", err)
	}
}
