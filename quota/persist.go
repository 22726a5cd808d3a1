package quota

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// Persister keeps quota state across restarts of the client.
type Persister interface {
	Load(key string) (State, bool, error)
	Save(key string, state State) error
}

// FilePersister stores every key in one JSON document.
type FilePersister struct {
	mu   sync.Mutex
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) readAll() (map[string]State, error) {
	states := map[string]State{}
	b, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return states, nil
		}
		return nil, eris.Wrapf(err, "failed to read %s", p.path)
	}
	if len(b) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(b, &states); err != nil {
		return nil, eris.Wrapf(err, "corrupt quota file %s", p.path)
	}
	return states, nil
}

func (p *FilePersister) Load(key string) (State, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	states, err := p.readAll()
	if err != nil {
		return State{}, false, err
	}
	state, ok := states[key]
	return state, ok, nil
}

func (p *FilePersister) Save(key string, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	states, err := p.readAll()
	if err != nil {
		return err
	}
	states[key] = state

	b, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode quota state")
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return eris.Wrap(err, "failed to create quota dir")
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return eris.Wrap(err, "failed to write quota file")
	}
	return eris.Wrap(os.Rename(tmp, p.path), "failed to replace quota file")
}

// MemoryPersister keeps state for the lifetime of the process.
type MemoryPersister struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{states: map[string]State{}}
}

func (p *MemoryPersister) Load(key string) (State, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	return state, ok, nil
}

func (p *MemoryPersister) Save(key string, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[key] = state
	return nil
}
