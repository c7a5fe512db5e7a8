package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandSync は1回の同期パスを実行して終了することを示す。
	CommandSync Command = "sync"
	// CommandWorker は定期同期のワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandSyncを返す。
// 第2返り値はサブコマンドを除いた残りの引数。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandSync, nil
	}

	switch args[0] {
	case "sync":
		return CommandSync, args[1:]
	case "worker":
		return CommandWorker, args[1:]
	case "healthcheck":
		return CommandHealthcheck, args[1:]
	default:
		// サブコマンド省略時は引数全体をsyncの引数として扱う
		return CommandSync, args
	}
}
