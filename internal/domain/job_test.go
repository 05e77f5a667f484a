package domain

import (
	"encoding/json"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	var p Params
	p.ApplyDefaults()

	if p != DefaultParams() {
		t.Fatalf("defaults not applied: %+v", p)
	}

	p = Params{Width: 768, Steps: 20}
	p.ApplyDefaults()
	if p.Width != 768 || p.Steps != 20 {
		t.Fatalf("explicit values overwritten: %+v", p)
	}
	if p.Height != DefaultHeight || p.Scheduler != DefaultScheduler {
		t.Fatalf("missing values not filled: %+v", p)
	}
}

func TestEffectiveSeed(t *testing.T) {
	p := Params{Seed: 42}
	if got := p.EffectiveSeed(); got != 42 {
		t.Fatalf("explicit seed changed: got %d", got)
	}

	p.Seed = 0
	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		s := p.EffectiveSeed()
		if s < 0 {
			t.Fatalf("negative seed %d", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Fatal("zero seed did not re-roll across calls")
	}
	if p.Seed != 0 {
		t.Fatal("stored seed mutated")
	}
}

func TestJobWireFormat(t *testing.T) {
	job := Job{
		ID:     "u-1",
		Type:   JobTypeText2Img,
		Status: JobStatusPending,
		Prompt: "a cat",
		Params: Params{
			Seed:          42,
			Width:         768,
			Height:        512,
			GuidanceScale: 25.0,
			Steps:         50,
			Scheduler:     "Default",
			Strength:      0.5,
		},
	}

	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"seed":           float64(42),
		"width":          float64(768),
		"height":         float64(512),
		"guidance_scale": 25.0,
		"steps":          float64(50),
		"scheduler":      "Default",
		"strength":       0.5,
	}
	for key, value := range want {
		got, ok := wire[key]
		if !ok {
			t.Errorf("wire form missing %q", key)
			continue
		}
		if got != value {
			t.Errorf("%s = %v, want %v", key, got, value)
		}
	}
	if wire["uuid"] != "u-1" || wire["prompt"] != "a cat" {
		t.Fatalf("base fields broken: %v", wire)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusRunning, JobStatusDone, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusPending, JobStatusDone, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusDone, JobStatusRunning, false},
		{JobStatusDone, JobStatusFailed, false},
		{JobStatusFailed, JobStatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTypeRequirements(t *testing.T) {
	tests := []struct {
		typ        JobType
		prompt     bool
		refImage   bool
		maskImage  bool
		recognized bool
	}{
		{JobTypeText2Img, true, false, false, true},
		{JobTypeImg2Img, true, true, false, true},
		{JobTypeInpainting, true, true, true, true},
		{JobTypeRestoration, false, true, false, true},
		{JobType("video"), true, false, false, false},
	}
	for _, tt := range tests {
		if got := tt.typ.NeedsPrompt(); got != tt.prompt {
			t.Errorf("%s NeedsPrompt = %v", tt.typ, got)
		}
		if got := tt.typ.NeedsReferenceImage(); got != tt.refImage {
			t.Errorf("%s NeedsReferenceImage = %v", tt.typ, got)
		}
		if got := tt.typ.NeedsMaskImage(); got != tt.maskImage {
			t.Errorf("%s NeedsMaskImage = %v", tt.typ, got)
		}
		if got := KnownType(tt.typ); got != tt.recognized {
			t.Errorf("KnownType(%s) = %v", tt.typ, got)
		}
	}
}
