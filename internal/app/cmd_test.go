package app

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  Command
		wantRest []string
	}{
		{
			name:     "引数なしはsync",
			args:     nil,
			wantCmd:  CommandSync,
			wantRest: nil,
		},
		{
			name:     "syncサブコマンド",
			args:     []string{"sync"},
			wantCmd:  CommandSync,
			wantRest: []string{},
		},
		{
			name:     "syncサブコマンドと残り引数",
			args:     []string{"sync", "cookie", "token"},
			wantCmd:  CommandSync,
			wantRest: []string{"cookie", "token"},
		},
		{
			name:     "workerサブコマンド",
			args:     []string{"worker"},
			wantCmd:  CommandWorker,
			wantRest: []string{},
		},
		{
			name:     "healthcheckサブコマンド",
			args:     []string{"healthcheck"},
			wantCmd:  CommandHealthcheck,
			wantRest: []string{},
		},
		{
			name:     "サブコマンド省略時は全引数をsyncに渡す",
			args:     []string{"cookie", "token", "db-id"},
			wantCmd:  CommandSync,
			wantRest: []string{"cookie", "token", "db-id"},
		},
		{
			name:     "フラグ始まりもsyncの引数として扱う",
			args:     []string{"-limit", "3"},
			wantCmd:  CommandSync,
			wantRest: []string{"-limit", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, rest := ParseCommand(tt.args)
			if cmd != tt.wantCmd {
				t.Errorf("command = %q, want %q", cmd, tt.wantCmd)
			}
			if len(rest) != len(tt.wantRest) {
				t.Fatalf("rest = %v, want %v", rest, tt.wantRest)
			}
			if len(rest) > 0 && !reflect.DeepEqual(rest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
		})
	}
}
