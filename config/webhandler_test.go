package config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigHandler_Get(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()

	ConfigHandler(cfile).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var rt RuntimeConfig
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rt))
	assert.Equal(t, 128, rt.Palette.Brightness)
	assert.Equal(t, []int{0, 255, 0}, rt.Palette.Colors[3])
	assert.True(t, rt.NightMode.Enabled)
	assert.Equal(t, 0, rt.Blend)
}

func TestConfigHandler_Post(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	before, err := ReadConfig(cfile)
	assert.NoError(t, err)

	rt := before.Runtime()
	rt.Blend = 5
	rt.Palette.Colors = map[int][]int{9: {1, 2, 3}}
	body, _ := json.Marshal(rt)

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ConfigHandler(cfile).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	after, err := ReadConfig(cfile)
	assert.NoError(t, err)
	assert.Equal(t, 5, after.Renderer.Blend)
	assert.Equal(t, map[int][]int{9: {1, 2, 3}}, after.Palette.Colors)
	assert.Equal(t, before.Display, after.Display, "hardware settings must be preserved")
	assert.Equal(t, before.Sender, after.Sender)
}

func TestConfigHandler_PostInvalid(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	before, _ := ReadConfig(cfile)

	rt := before.Runtime()
	rt.Blend = 300
	body, _ := json.Marshal(rt)

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ConfigHandler(cfile).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Renderer.Blend")

	after, _ := ReadConfig(cfile)
	assert.Equal(t, before, after, "file must stay untouched")
}

func TestConfigHandler_BadBody(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	ConfigHandler(cfile).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfigHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/config", nil)
	rr := httptest.NewRecorder()
	ConfigHandler("unused").ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestConfigHandler_PostReplacesFileAtomically(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	before, _ := ReadConfig(cfile)
	rt := before.Runtime()
	rt.NightMode.Brightness = 7
	body, _ := json.Marshal(rt)

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ConfigHandler(cfile).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"updated"}`, rr.Body.String())

	entries, err := os.ReadDir(filepath.Dir(cfile))
	assert.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")

	info, err := os.Stat(cfile)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestConfigHandler_ErrorIsJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	ConfigHandler("unused").ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/config", nil))
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))
	assert.JSONEq(t, `{"error":"method not allowed"}`, rr.Body.String())
}
