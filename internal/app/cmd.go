package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command は newsletter バイナリのサブコマンド。
type Command string

const (
	// CommandServe はHTTP APIを提供する。引数なしの既定値。
	CommandServe Command = "serve"
	// CommandWorker は確認トークンの定期削除を行う。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新版まで適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認して終了する。
	// distrolessイメージの HEALTHCHECK から呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// ErrUnknownCommand は未知のサブコマンドが指定されたことを表す。
var ErrUnknownCommand = errors.New("unknown command")

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がなければ serve。綴り違いでサーバーが起動しないよう、未知の名前はエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (available: %s)", ErrUnknownCommand, args[0], usage())
}

func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
