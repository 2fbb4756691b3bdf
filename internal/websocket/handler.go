// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP requests against an origin allowlist. Requests
// without an Origin header are non-browser clients and pass; the session
// token still binds every connection to one session.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader builds an upgrader from the allowed origins. "*" admits
// every origin; an empty list admits only requests with no Origin header.
func NewUpgrader(origins []string) *Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}

	u := &Upgrader{}
	u.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			return allowed[strings.ToLower(origin)]
		},
	}
	return u
}

// Upgrade upgrades an HTTP request and starts the client pumps against
// the given session. Disallowed origins get a 403 from the underlying
// upgrader.
func (u *Upgrader) Upgrade(hub *Hub, session SessionEngine, w http.ResponseWriter, r *http.Request) error {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	NewClient(hub, conn, session).Start()
	return nil
}
