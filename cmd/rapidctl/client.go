// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/auth"
)

// envelope mirrors the API response frame so errors can be surfaced
// with their server-side code instead of a bare status line.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// adminGet calls a GET admin endpoint and decodes the data payload into out.
func adminGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	return adminCall(ctx, http.MethodGet, path, query, out)
}

// adminPost calls a POST admin endpoint with no request body.
func adminPost(ctx context.Context, path string, out interface{}) error {
	return adminCall(ctx, http.MethodPost, path, nil, out)
}

func adminCall(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	target := strings.TrimRight(serverURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if adminKey != "" {
		req.Header.Set(auth.AdminKeyHeader, adminKey)
	}

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return fmt.Errorf("%s returned HTTP %d with an unreadable body", target, resp.StatusCode)
	}
	if env.Error != nil {
		return fmt.Errorf("server rejected the request: %s (%s)", env.Error.Message, env.Error.Code)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned HTTP %d", target, resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// printJSON writes v as indented JSON, the default output format for
// anything richer than a one-line answer.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
