package types

import (
	"testing"
)

func TestChangeStatus(t *testing.T) {
	tests := []struct {
		status ChangeStatus
		valid  bool
		open   bool
	}{
		{StatusNew, true, true},
		{StatusDraft, true, true},
		{StatusMerged, true, false},
		{StatusAbandoned, true, false},
		{ChangeStatus("deleted"), false, false},
		{ChangeStatus(""), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if got := tt.status.IsOpen(); got != tt.open {
				t.Errorf("IsOpen() = %v, want %v", got, tt.open)
			}
		})
	}
}

func TestBranchNames(t *testing.T) {
	tests := []struct {
		in, full, short string
	}{
		{"master", "refs/heads/master", "master"},
		{"refs/heads/stable-3.4", "refs/heads/stable-3.4", "stable-3.4"},
		{"feature/x", "refs/heads/feature/x", "feature/x"},
	}
	for _, tt := range tests {
		if got := FullBranchName(tt.in); got != tt.full {
			t.Errorf("FullBranchName(%q) = %q, want %q", tt.in, got, tt.full)
		}
		if got := ShortBranchName(tt.in); got != tt.short {
			t.Errorf("ShortBranchName(%q) = %q, want %q", tt.in, got, tt.short)
		}
	}
}

func TestGroupIsSelfOwned(t *testing.T) {
	g := &Group{UUID: "abc"}
	if !g.IsSelfOwned() {
		t.Error("group without owner should be self-owned")
	}
	g.OwnerUUID = "abc"
	if !g.IsSelfOwned() {
		t.Error("group owning itself should be self-owned")
	}
	g.OwnerUUID = "def"
	if g.IsSelfOwned() {
		t.Error("group owned by another group is not self-owned")
	}
}

func TestIsInheritable(t *testing.T) {
	if !IsInheritable("inherit.submit.type") {
		t.Error("inherit.* keys should be inheritable")
	}
	if IsInheritable("description") {
		t.Error("plain keys are not inheritable")
	}
}
