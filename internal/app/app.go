package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/shiori/internal/book"
	"github.com/hitoshi/shiori/internal/config"
	"github.com/hitoshi/shiori/internal/content"
	"github.com/hitoshi/shiori/internal/logger"
	"github.com/hitoshi/shiori/internal/metrics"
	"github.com/hitoshi/shiori/internal/notion"
	"github.com/hitoshi/shiori/internal/security"
	syncpkg "github.com/hitoshi/shiori/internal/sync"
	"github.com/hitoshi/shiori/internal/weread"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) *config.Config {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	return config.Load()
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg := Init(w)

	if err := applyArgs(cfg, rest); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	default:
		return runSync(cfg)
	}
}

// applyArgs はコマンドライン引数をConfigに反映する。
// 位置引数はweread cookie、notion token、database IDの順で、
// 環境変数より優先される。-limit Nは同期対象の冊数を制限する。
func applyArgs(cfg *config.Config, args []string) error {
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-limit", "--limit":
			if i+1 >= len(args) {
				return fmt.Errorf("flag %s requires a value", args[i])
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid value for %s: %q", args[i], args[i+1])
			}
			cfg.SyncLimit = n
			i++
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) > 3 {
		return fmt.Errorf("too many arguments: expected at most 3 (cookie, token, database ID), got %d", len(positional))
	}
	if len(positional) > 0 {
		cfg.WereadCookie = positional[0]
	}
	if len(positional) > 1 {
		cfg.NotionToken = positional[1]
	}
	if len(positional) > 2 {
		cfg.NotionDatabaseID = positional[2]
	}
	return nil
}

// newOutboundClient は外部API呼び出し用のHTTPクライアントを生成する。
// safeurlでラップされており、プライベートIPやメタデータIPへの
// リクエストはDNS解決後のアドレス検証でブロックされる。
func newOutboundClient(cfg *config.Config) *http.Client {
	return security.NewCoverGuard().NewSafeClient(cfg.RequestTimeout)
}

// buildSyncer は同期パイプラインの全依存関係をワイヤリングする。
func buildSyncer(cfg *config.Config, registry *prometheus.Registry) *syncpkg.Syncer {
	log := slog.Default()

	httpClient := newOutboundClient(cfg)

	wereadClient := weread.NewClient(httpClient, log, cfg.WereadCookie)
	notionClient := notion.NewClient(httpClient, log, cfg.NotionToken, cfg.NotionDatabaseID,
		notion.ClientConfig{
			RequestsPerSecond: cfg.NotionRequestsPerSecond,
			Retry: notion.RetryPolicy{
				MaxAttempts:    cfg.NotionMaxRetries,
				InitialBackoff: cfg.NotionRetryBackoff,
			},
		})

	sanitizer := security.NewTextSanitizer()
	coverGuard := security.NewCoverGuard()

	bookBuilder := book.NewBuilder(wereadClient, log)
	contentBuilder := content.NewBuilder(sanitizer, log)
	collector := metrics.NewCollector(registry)

	return syncpkg.NewSyncer(
		wereadClient, bookBuilder, contentBuilder, notionClient,
		coverGuard, collector, log,
		syncpkg.Config{
			MaxConcurrency: cfg.SyncMaxConcurrent,
			Limit:          cfg.SyncLimit,
		},
	)
}

// validateCredential はソースAPIの認証情報を検証する。
// クッキー失効を早期に検出し、無駄な同期処理を避ける。
func validateCredential(ctx context.Context, cfg *config.Config) error {
	client := weread.NewClient(newOutboundClient(cfg), slog.Default(), cfg.WereadCookie)
	return client.Validate(ctx)
}

// runSync は1回の同期パスを実行して終了する。
// SIGINTまたはSIGTERMシグナルを受信すると処理を中断する。
func runSync(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := validateCredential(ctx, cfg); err != nil {
		return err
	}

	syncer := buildSyncer(cfg, prometheus.NewRegistry())

	summary, err := syncer.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	// 個々の書籍の失敗はログ済み。終了コードはセットアップ失敗時のみ非ゼロ
	slog.Info("sync completed",
		slog.Int("synced", summary.Synced),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

// runWorker はワーカーモードで起動する。
// 同期スケジューラを定期実行しつつ、ヘルスチェックとメトリクスを
// 提供するHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := validateCredential(ctx, cfg); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	syncer := buildSyncer(cfg, registry)

	// ステータスサーバー: ヘルスチェックとPrometheusメトリクス
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("status server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	syncer.Start(ctx, cfg.SyncInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
