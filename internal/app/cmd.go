package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー。
	CommandServe Command = "serve"
	// CommandWorker は一括処理のスケジューラとクリーンアップ。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマの適用。
	CommandMigrate Command = "migrate"
	// CommandSweep はステータス更新と通知送信を1回だけ実行する。外部のcronから起動する構成向け。
	CommandSweep Command = "sweep"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandSweep, CommandHealthcheck}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。引数なしはserve。
// 2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (available: %s)", args[0], usage())
}

func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
