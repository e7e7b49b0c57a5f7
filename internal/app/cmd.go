package app

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Command はbgmfeedのサブコマンド。
type Command string

const (
	// CommandServe はフィードサーバーを起動する。引数なしの場合の既定。
	CommandServe Command = "serve"
	// CommandHealthcheck は起動中のサーバーの /health を叩き、結果を終了コードで返す。
	// シェルを持たないdistrolessイメージのHEALTHCHECKから呼び出す。
	CommandHealthcheck Command = "healthcheck"
	// CommandVersion はビルドのバージョンを出力して終了する。
	CommandVersion Command = "version"
)

var commands = []Command{CommandServe, CommandHealthcheck, CommandVersion}

// ParseCommand は os.Args[1:] の先頭からサブコマンドを決める。
// 未知のサブコマンドはエラーにする。HEALTHCHECK の綴り誤りでサーバーが
// 二重に起動するのを防ぐため、serve へのフォールバックはしない。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown command %q (available: %s)", args[0], strings.Join(names, ", "))
}

// Version はビルド時に -ldflags "-X github.com/hitoshi/bgmfeed/internal/app.Version=..." で埋め込む。
var Version = ""

// BuildVersion は埋め込まれたバージョン、なければモジュール情報のバージョンを返す。
func BuildVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// versionLine は version サブコマンドの出力行。
func versionLine() string {
	return fmt.Sprintf("bgmfeed %s %s/%s %s", BuildVersion(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
