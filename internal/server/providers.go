package server

import (
	"errors"
	"fmt"
	"sync"

	"cairn/internal/config"
	"cairn/internal/provider"
	"cairn/internal/provider/ollama"
	"cairn/internal/provider/scripted"
)

// Backend names understood in "<backend>:<model>" model names.
const (
	BackendScripted = "scripted"
	BackendOllama   = "ollama"
)

// NewRouter registers every model backend configured in cfg.
func NewRouter(cfg config.ProviderConfig) (*provider.Router, error) {
	def := cfg.Default
	if def == "" {
		def = BackendScripted
	}
	r := provider.NewRouter(def)
	if err := r.Handle(BackendScripted, scriptedFactory(cfg.Script)); err != nil {
		return nil, err
	}
	if err := r.Handle(BackendOllama, ollama.Factory(cfg.Ollama)); err != nil {
		return nil, err
	}
	return r, nil
}

// scriptedFactory serves every model from the turns file at path. The file
// is read once, on first use.
func scriptedFactory(path string) provider.Factory {
	var (
		once sync.Once
		prov *scripted.Provider
		err  error
	)
	return func(string) (provider.Provider, error) {
		if path == "" {
			return nil, errors.New("scripted backend needs provider.script")
		}
		once.Do(func() {
			prov, err = scripted.Load(path)
			if err != nil {
				err = fmt.Errorf("load script %s: %w", path, err)
			}
		})
		return prov, err
	}
}
