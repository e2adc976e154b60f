package model

import (
	"strings"
	"testing"
	"time"
)

func validProduct() *Product {
	now := time.Now().UTC()
	return &Product{
		ID:         "local-abc",
		Name:       "Widget",
		Quantity:   3,
		PriceCents: 999,
		SyncStatus: StatusPending,
		CachedAt:   now,
		UpdatedAt:  now,
	}
}

// TestProductValidate tests field validation rules
func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Product)
		wantErr bool
	}{
		{"valid", func(p *Product) {}, false},
		{"missing id", func(p *Product) { p.ID = "" }, true},
		{"missing name", func(p *Product) { p.Name = "" }, true},
		{"name too long", func(p *Product) { p.Name = strings.Repeat("x", 501) }, true},
		{"name at limit", func(p *Product) { p.Name = strings.Repeat("x", 500) }, false},
		{"negative quantity", func(p *Product) { p.Quantity = -1 }, true},
		{"negative price", func(p *Product) { p.PriceCents = -1 }, true},
		{"zero quantity", func(p *Product) { p.Quantity = 0 }, false},
		{"bad status", func(p *Product) { p.SyncStatus = "unknown" }, true},
		{"pending delete status", func(p *Product) { p.SyncStatus = StatusPendingDelete }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestProductClone tests that clones are independent
func TestProductClone(t *testing.T) {
	p := validProduct()
	c := p.Clone()

	c.Name = "Changed"
	c.Quantity = 99

	if p.Name != "Widget" {
		t.Errorf("Original name mutated: %q", p.Name)
	}
	if p.Quantity != 3 {
		t.Errorf("Original quantity mutated: %d", p.Quantity)
	}
}

// TestQueueEntryPayload tests payload decoding
func TestQueueEntryPayload(t *testing.T) {
	entry := QueueEntry{
		Action: ActionCreate,
		Data:   []byte(`{"product_id":"local-a","product":{"id":"local-a","name":"Widget"}}`),
	}

	payload, err := entry.Payload()
	if err != nil {
		t.Fatalf("Payload() failed: %v", err)
	}
	if payload.ProductID != "local-a" {
		t.Errorf("ProductID = %q, want 'local-a'", payload.ProductID)
	}
	if payload.Product == nil || payload.Product.Name != "Widget" {
		t.Errorf("Product = %+v, want Widget", payload.Product)
	}
}

// TestQueueEntryPayload_Invalid tests decoding of corrupt payloads
func TestQueueEntryPayload_Invalid(t *testing.T) {
	entry := QueueEntry{Data: []byte(`{not json`)}
	if _, err := entry.Payload(); err == nil {
		t.Error("Payload() on corrupt data should fail")
	}
}
