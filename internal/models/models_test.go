package models

import "testing"

func TestSessionKeyString(t *testing.T) {
	k := SessionKey{ChatID: 123, MessageID: 456}
	if k.String() != "123:456" {
		t.Errorf("String() = %q, want %q", k.String(), "123:456")
	}
}

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"valid episodes", NewEpisodesAction("Show", "http://img"), false},
		{"valid download", NewDownloadAction("Show", 3), false},
		{"episodes missing payload", Action{Kind: KindEpisodes}, true},
		{"download missing payload", Action{Kind: KindDownload}, true},
		{"unknown kind", Action{Kind: "bogus"}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.action.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}
