package task

import (
	"fmt"
	"time"
)

// RateLimitAllTypes is the task-type wildcard accepted by SetRateLimit;
// a rule keyed on it counts submissions of every type for the user.
const RateLimitAllTypes = "*"

// rateRule is a sliding-window submission limit for one (user, type) pair.
type rateRule struct {
	limit  int
	window time.Duration

	// stamps holds the submission times still inside the window,
	// oldest first. Expired entries are pruned lazily on each check.
	stamps []time.Time
}

func (r *rateRule) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	r.stamps = r.stamps[i:]
}

// rateLimiter enforces the two per-user submission checks: an ambient cap
// on simultaneously active (pending + processing) tasks, and optional
// explicit sliding-window rules per task type or for all types.
//
// Not safe for concurrent use on its own; the engine calls it under its
// own lock.
type rateLimiter struct {
	userLimit int
	rules     map[string]map[string]*rateRule
	clock     Clock
}

func newRateLimiter(userLimit int, clock Clock) *rateLimiter {
	return &rateLimiter{
		userLimit: userLimit,
		rules:     make(map[string]map[string]*rateRule),
		clock:     clock,
	}
}

// setRule installs (or overwrites) an explicit sliding-window rule for the
// given user and task type. taskType may be RateLimitAllTypes.
func (l *rateLimiter) setRule(userID, taskType string, limit int, window time.Duration) {
	byType, ok := l.rules[userID]
	if !ok {
		byType = make(map[string]*rateRule)
		l.rules[userID] = byType
	}
	byType[taskType] = &rateRule{limit: limit, window: window}
}

// allow checks every applicable limit for a submission by userID of the
// given task type, where activeForUser is the user's current
// pending + processing count. On success it records the submission
// timestamp against each matching explicit rule.
func (l *rateLimiter) allow(userID, taskType string, activeForUser int) error {
	if activeForUser >= l.userLimit {
		return fmt.Errorf("%w: user %q already has %d active tasks (limit %d)",
			ErrRateLimitExceeded, userID, activeForUser, l.userLimit)
	}

	now := l.clock.Now()
	var matched []*rateRule
	if byType, ok := l.rules[userID]; ok {
		for _, key := range []string{taskType, RateLimitAllTypes} {
			rule, ok := byType[key]
			if !ok {
				continue
			}
			rule.prune(now)
			if len(rule.stamps) >= rule.limit {
				return fmt.Errorf("%w: user %q exceeded %d submissions of %q per %s",
					ErrRateLimitExceeded, userID, rule.limit, key, rule.window)
			}
			matched = append(matched, rule)
		}
	}

	// Record only after every applicable rule has passed, so a rejected
	// submission does not consume window budget.
	for _, rule := range matched {
		rule.stamps = append(rule.stamps, now)
	}
	return nil
}
