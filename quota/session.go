package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const sessionKey = "session"

func walletKey(wallet string) string {
	return "wallet:" + wallet
}

type preConnect struct {
	state   State
	balance float64
}

// Session is the client side of the quota engine: the allowance of whoever
// is painting right now, plus what to go back to when a wallet disconnects.
type Session struct {
	mu        sync.Mutex
	engine    Engine
	persister Persister
	wallet    string
	balance   float64
	state     State
	saved     *preConnect
}

// NewSession resumes the anonymous session from persister, or starts at the
// disconnected tier when nothing was saved.
func NewSession(engine Engine, persister Persister) (*Session, error) {
	state, ok, err := persister.Load(sessionKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		state = NewState(TierFor(0))
	}
	s := &Session{engine: engine, persister: persister}
	s.state = engine.Refresh(state, 0)
	return s, nil
}

func (s *Session) Wallet() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet
}

func (s *Session) currentKey() string {
	if s.wallet == "" {
		return sessionKey
	}
	return walletKey(s.wallet)
}

func (s *Session) persist() {
	if err := s.persister.Save(s.currentKey(), s.state); err != nil {
		log.Error().Err(err).Str("key", s.currentKey()).Msg("Failed to persist quota state")
	}
}

// Connect switches the session to wallet. The state held before the first
// connect is kept aside and restored by Disconnect.
func (s *Session) Connect(wallet string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallet == wallet {
		s.balance = balance
		return nil
	}
	s.persist()
	if s.wallet == "" {
		s.saved = &preConnect{state: s.state, balance: s.balance}
	}

	state, ok, err := s.persister.Load(walletKey(wallet))
	if err != nil {
		return err
	}
	if !ok {
		state = NewState(TierFor(balance))
	}

	s.wallet = wallet
	s.balance = balance
	s.state = s.engine.Refresh(state, balance)
	s.persist()
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallet == "" {
		return
	}
	s.persist()

	s.wallet = ""
	if s.saved != nil {
		s.state = s.engine.Refresh(s.saved.state, s.saved.balance)
		s.balance = s.saved.balance
		s.saved = nil
	} else {
		s.state = NewState(TierFor(0))
		s.balance = 0
	}
	s.persist()
}

// SetBalance changes the tier used at the next reset; the current allowance
// is left alone.
func (s *Session) SetBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

func (s *Session) Attempt() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, decision := s.engine.Attempt(s.state, s.balance)
	s.state = state
	s.persist()
	return decision
}

// Refund gives back one placement taken by Attempt when the server then
// rejected the write.
func (s *Session) Refund() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Unlimited || s.state.CooldownActive() {
		return
	}
	s.state.Remaining++
	s.persist()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshed := s.engine.Refresh(s.state, s.balance)
	if refreshed != s.state {
		s.state = refreshed
		s.persist()
	}
	return s.engine.Status(s.state, s.balance)
}

// Run reports the status once per second until ctx ends. An expired
// cooldown is reset on the tick that observes it.
func (s *Session) Run(ctx context.Context, onTick func(Status)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := s.Status()
			if onTick != nil {
				onTick(status)
			}
		case <-ctx.Done():
			return
		}
	}
}
