package cli

import "testing"

func TestFindCommand(t *testing.T) {
	root := DefineOptions()

	tests := []struct {
		name        string
		command     string
		wantName    string
		wantParents int
	}{
		{"root by name", RootCLICommand, RootCLICommand, 0},
		{"root by empty", "", RootCLICommand, 0},
		{"child", "export", "export", 1},
		{"unknown", "receive", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, parents := findCommand(root, tt.command)
			if tt.wantName == "" {
				if found != nil {
					t.Fatalf("expected no command, got %s", found.CommandName)
				}
				return
			}
			if found == nil || found.CommandName != tt.wantName || len(parents) != tt.wantParents {
				t.Fatalf("unexpected lookup result %v with %d parents", found, len(parents))
			}
		})
	}
}
