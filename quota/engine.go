package quota

import (
	"time"
)

// State is the per-wallet allowance. CooldownEndsAt is an absolute unix
// millisecond timestamp so the time left can always be recomputed from the
// clock, including after a reload; zero means no cooldown.
type State struct {
	Remaining      int   `json:"remaining"`
	Unlimited      bool  `json:"unlimited"`
	CooldownEndsAt int64 `json:"cooldownEndsAt,omitempty"`
}

func (s State) CooldownActive() bool {
	return s.CooldownEndsAt != 0
}

// NewState returns a full allowance for tier.
func NewState(tier Tier) State {
	return State{Remaining: tier.Quota, Unlimited: tier.Unlimited}
}

type Decision struct {
	Allowed      bool
	Remaining    int
	Unlimited    bool
	CooldownLeft time.Duration
}

type Status struct {
	Tier                Tier  `json:"tier"`
	Remaining           int   `json:"remaining"`
	Unlimited           bool  `json:"unlimited"`
	CooldownActive      bool  `json:"cooldownActive"`
	CooldownEndsAt      int64 `json:"cooldownEndsAt,omitempty"`
	CooldownSecondsLeft int   `json:"cooldownSecondsLeft"`
}

// Engine evaluates State transitions against a clock. It holds no state of
// its own, so one Engine serves any number of wallets.
type Engine struct {
	now func() time.Time
}

func NewEngine(now func() time.Time) Engine {
	if now == nil {
		now = time.Now
	}
	return Engine{now: now}
}

// Now reads the engine clock. The zero Engine uses the wall clock.
func (e Engine) Now() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Refresh ends an expired cooldown. The allowance is reset from the tier of
// the current balance, which may differ from the one the cooldown began in.
// An unlimited allowance has no cooldown to wait for, so it resets as soon as
// the balance no longer reaches the unlimited tier.
func (e Engine) Refresh(s State, balance float64) State {
	if s.CooldownActive() && e.Now().UnixMilli() >= s.CooldownEndsAt {
		return NewState(TierFor(balance))
	}
	if s.Unlimited && !TierFor(balance).Unlimited {
		return NewState(TierFor(balance))
	}
	return s
}

// Attempt decides one placement. The cooldown is not started when the
// allowance reaches zero but on the first attempt made with nothing left.
func (e Engine) Attempt(s State, balance float64) (State, Decision) {
	s = e.Refresh(s, balance)
	now := e.Now()

	if s.CooldownActive() {
		return s, Decision{Remaining: s.Remaining, CooldownLeft: e.timeLeft(s, now)}
	}

	if !s.Unlimited && s.Remaining <= 0 {
		tier := TierFor(balance)
		if tier.Cooldown > 0 {
			s.Remaining = 0
			s.CooldownEndsAt = now.Add(tier.Cooldown).UnixMilli()
			return s, Decision{Remaining: 0, CooldownLeft: tier.Cooldown}
		}
		s = NewState(tier)
	}

	if s.Unlimited {
		return s, Decision{Allowed: true, Unlimited: true}
	}

	s.Remaining--
	return s, Decision{Allowed: true, Remaining: s.Remaining}
}

func (e Engine) Status(s State, balance float64) Status {
	s = e.Refresh(s, balance)
	status := Status{
		Tier:           TierFor(balance),
		Remaining:      s.Remaining,
		Unlimited:      s.Unlimited,
		CooldownActive: s.CooldownActive(),
		CooldownEndsAt: s.CooldownEndsAt,
	}
	if s.CooldownActive() {
		left := e.timeLeft(s, e.Now())
		status.CooldownSecondsLeft = int((left + time.Second - 1) / time.Second)
	}
	return status
}

func (e Engine) timeLeft(s State, now time.Time) time.Duration {
	left := time.UnixMilli(s.CooldownEndsAt).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
