// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package authz provides role-based authorization using Casbin. The
// role graph is small: devices operate their own sessions, admins
// additionally reach operator endpoints and inherit device access.
package authz

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// PolicyPath overrides the embedded policy when set.
	PolicyPath string

	// DefaultRole is assumed for subjects without an explicit role.
	DefaultRole string

	// CacheEnabled enables enforcement decision caching.
	CacheEnabled bool

	// CacheTTL is how long to cache decisions.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		DefaultRole:  "device",
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with decision caching.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *enforcementCache
}

// NewEnforcer creates an authorization enforcer from the embedded
// model and policy, or from config.PolicyPath when set.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		adapter := fileadapter.NewAdapter(config.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create authz enforcer: %w", err)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
	}
	if config.CacheEnabled {
		e.cache = newEnforcementCache(config.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Enforce checks if the subject can perform the action on the object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}
	return allowed, nil
}

// EnforceRole checks whether the given role (falling back to the
// default role when empty) allows the action on the object.
func (e *Enforcer) EnforceRole(role, object, action string) (bool, error) {
	if role == "" {
		role = e.config.DefaultRole
	}
	return e.Enforce(role, object, action)
}

// Close releases background resources.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}
