package app

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", []string{}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"sweep", []string{"sweep"}, CommandSweep},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"余分な引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) returned error: %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	_, err := ParseCommand([]string{"serv"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	// 利用可能なコマンドを案内する
	for _, name := range []string{"serve", "worker", "migrate", "sweep", "healthcheck"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should mention %q", err, name)
		}
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := Run(&strings.Builder{}, []string{"bogus"}); err == nil {
		t.Fatal("expected Run to fail for an unknown command")
	}
}
