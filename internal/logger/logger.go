// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// levelより低いレベルのログは出力しない。
func Setup(w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// wがnilの場合はos.Stdoutに出力する。
// 設定読み込み前に呼ばれるため、レベルは後から変更できるslog.LevelVarで受け取る。
func SetupDefault(w io.Writer, level *slog.LevelVar) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	var leveler slog.Leveler = slog.LevelInfo
	if level != nil {
		leveler = level
	}
	l := Setup(w, leveler)
	slog.SetDefault(l)
	return l
}
