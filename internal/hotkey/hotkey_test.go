package hotkey

import (
	"testing"

	"golang.design/x/hotkey"
)

func TestParseBinding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec     string
		wantKey  hotkey.Key
		wantMods []hotkey.Modifier
		wantErr  bool
	}{
		{spec: "f2", wantKey: hotkey.KeyF2},
		{spec: "F2", wantKey: hotkey.KeyF2},
		{spec: " f12 ", wantKey: hotkey.KeyF12},
		{spec: "ctrl+shift+space", wantKey: hotkey.KeySpace, wantMods: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}},
		{spec: "alt+d", wantKey: hotkey.KeyD, wantMods: []hotkey.Modifier{hotkey.ModAlt}},
		{spec: "", wantErr: true},
		{spec: "f13", wantErr: true},
		{spec: "hyper+f2", wantErr: true},
		{spec: "ctrl+", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.spec, func(t *testing.T) {
			t.Parallel()
			b, err := ParseBinding(tc.spec)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseBinding(%q) succeeded, want error", tc.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBinding(%q): %v", tc.spec, err)
			}
			if b.Key != tc.wantKey {
				t.Errorf("key = %v, want %v", b.Key, tc.wantKey)
			}
			if len(b.Mods) != len(tc.wantMods) {
				t.Fatalf("mods = %v, want %v", b.Mods, tc.wantMods)
			}
			for i := range b.Mods {
				if b.Mods[i] != tc.wantMods[i] {
					t.Errorf("mods[%d] = %v, want %v", i, b.Mods[i], tc.wantMods[i])
				}
			}
		})
	}
}
