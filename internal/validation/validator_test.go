// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package validation

import (
	"strings"
	"testing"
)

func TestGetValidatorSingleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil {
		t.Fatal("GetValidator() = nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() returned different instances")
	}
}

type sessionRequest struct {
	UserID   string  `validate:"required,min=1,max=128"`
	Viewport float64 `validate:"omitempty,gt=0,lte=4096"`
}

type ratingQuery struct {
	Tier      string `validate:"omitempty,tier"`
	Direction string `validate:"omitempty,direction"`
	Limit     int    `validate:"min=1,max=1000"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantErr   bool
		wantField string
	}{
		{
			name:    "valid session request",
			input:   &sessionRequest{UserID: "user-1", Viewport: 390},
			wantErr: false,
		},
		{
			name:      "missing user id",
			input:     &sessionRequest{Viewport: 390},
			wantErr:   true,
			wantField: "UserID",
		},
		{
			name:      "viewport out of range",
			input:     &sessionRequest{UserID: "user-1", Viewport: 9000},
			wantErr:   true,
			wantField: "Viewport",
		},
		{
			name:    "valid tier and direction",
			input:   &ratingQuery{Tier: "personal", Direction: "accept", Limit: 10},
			wantErr: false,
		},
		{
			name:      "unknown tier",
			input:     &ratingQuery{Tier: "premium", Limit: 10},
			wantErr:   true,
			wantField: "Tier",
		},
		{
			name:      "unknown direction",
			input:     &ratingQuery{Direction: "up", Limit: 10},
			wantErr:   true,
			wantField: "Direction",
		},
		{
			name:      "limit too large",
			input:     &ratingQuery{Limit: 5000},
			wantErr:   true,
			wantField: "Limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if !tt.wantErr {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			found := false
			for _, fe := range verr.Errors() {
				if fe.Field() == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v missing field %s", verr.Errors(), tt.wantField)
			}
		})
	}
}

func TestToAPIErrorSingleField(t *testing.T) {
	verr := ValidateStruct(&sessionRequest{})
	if verr == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "UserID is required") {
		t.Errorf("Message = %q, want it to mention UserID is required", apiErr.Message)
	}
	if apiErr.Details["field"] != "UserID" {
		t.Errorf("Details[field] = %v, want UserID", apiErr.Details["field"])
	}
}

func TestToAPIErrorMultipleFields(t *testing.T) {
	verr := ValidateStruct(&ratingQuery{Tier: "premium", Direction: "up", Limit: 0})
	if verr == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	if len(verr.Errors()) != 3 {
		t.Fatalf("len(Errors()) = %d, want 3", len(verr.Errors()))
	}

	apiErr := verr.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok {
		t.Fatalf("Details[fields] type = %T, want []map[string]interface{}", apiErr.Details["fields"])
	}
	if len(fields) != 3 {
		t.Errorf("len(fields) = %d, want 3", len(fields))
	}
}
