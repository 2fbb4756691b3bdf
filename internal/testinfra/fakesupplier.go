// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package testinfra

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// FakeSupplier is an in-process stand-in for the content supplier. It
// serves image pages from a seeded inventory and records submitted
// generation jobs.
type FakeSupplier struct {
	server *httptest.Server

	mu        sync.Mutex
	images    []supplierImage
	jobs      []models.GenerationRequest
	failNext  int // respond 500 this many more times
	jobSerial int
}

type supplierImage struct {
	ImageID   string            `json:"image_id"`
	URL       string            `json:"url"`
	BrandID   string            `json:"brand_id"`
	JobID     string            `json:"job_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type supplierPage struct {
	Images []supplierImage `json:"images"`
	Count  int             `json:"count"`
}

// NewFakeSupplier starts the fake; it stops with the test.
func NewFakeSupplier(t *testing.T) *FakeSupplier {
	t.Helper()
	f := &FakeSupplier{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL for supplier.Config.
func (f *FakeSupplier) URL() string { return f.server.URL }

// Seed adds n images attributed to brandID to the inventory.
func (f *FakeSupplier) Seed(brandID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := len(f.images)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("img-%04d", base+i)
		f.images = append(f.images, supplierImage{
			ImageID:   id,
			URL:       f.server.URL + "/media/" + id,
			BrandID:   brandID,
			CreatedAt: time.Now(),
		})
	}
}

// FailNext makes the next n requests return 500, for breaker and
// notice-path tests.
func (f *FakeSupplier) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Jobs returns the generation jobs submitted so far.
func (f *FakeSupplier) Jobs() []models.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GenerationRequest(nil), f.jobs...)
}

func (f *FakeSupplier) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		http.Error(w, "supplier overloaded", http.StatusInternalServerError)
		return
	}
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/images/"):
		f.servePage(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/jobs":
		f.acceptJob(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/media/"):
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake image bytes"))
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeSupplier) servePage(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 25
	}

	f.mu.Lock()
	if limit > len(f.images) {
		limit = len(f.images)
	}
	page := supplierPage{Images: append([]supplierImage(nil), f.images[:limit]...), Count: limit}
	f.images = f.images[limit:]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

func (f *FakeSupplier) acceptJob(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad job payload", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.jobSerial++
	jobID := fmt.Sprintf("job-%04d", f.jobSerial)
	f.jobs = append(f.jobs, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "queued"})
}
