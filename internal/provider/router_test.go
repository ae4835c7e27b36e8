package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingProvider struct {
	namedProvider
	err error
}

func (p *pingProvider) Ping(context.Context) error { return p.err }

func TestRouterDispatchesOnPrefix(t *testing.T) {
	r := NewRouter("scripted")
	var asked []string
	require.NoError(t, r.Handle("scripted", func(model string) (Provider, error) {
		asked = append(asked, "scripted/"+model)
		return &namedProvider{name: "scripted"}, nil
	}))
	require.NoError(t, r.Handle("ollama", func(model string) (Provider, error) {
		asked = append(asked, "ollama/"+model)
		return &namedProvider{name: "ollama"}, nil
	}))
	assert.Error(t, r.Handle("ollama", nil))
	assert.Error(t, r.Handle("a:b", nil))
	assert.Equal(t, []string{"ollama", "scripted"}, r.Backends())

	pool := r.Pool()
	p, err := pool.Get("ollama:llama3.2")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = pool.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, "scripted", p.Name())

	// Unknown prefixes are part of the model name.
	backend, name := r.Split("gpt:4o")
	assert.Equal(t, "scripted", backend)
	assert.Equal(t, "gpt:4o", name)

	assert.Equal(t, []string{"ollama/llama3.2", "scripted/demo"}, asked)
}

func TestRouterUnknownDefault(t *testing.T) {
	r := NewRouter("none")
	_, err := r.Pool().Get("m")
	assert.ErrorContains(t, err, `backend "none" not registered`)
}

func TestPingReportsFailures(t *testing.T) {
	pool := NewPool(nil)
	pool.Register("up", &pingProvider{namedProvider: namedProvider{name: "up"}})
	pool.Register("down", &pingProvider{namedProvider: namedProvider{name: "down"}, err: errors.New("refused")})
	pool.Register("plain", &namedProvider{name: "plain"})

	failures := Ping(context.Background(), pool)
	require.Len(t, failures, 1)
	assert.EqualError(t, failures["down"], "refused")
}
