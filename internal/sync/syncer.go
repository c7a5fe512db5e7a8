// Package sync は書籍ごとの同期パイプラインとその並列実行を提供する。
// フェッチ→構築→差分確認→書き込みの流れをウォーターマークで制御する。
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shiori/internal/metrics"
	"github.com/hitoshi/shiori/internal/model"
	"github.com/hitoshi/shiori/internal/notion"
	"github.com/hitoshi/shiori/internal/weread"
)

// Source は書籍一覧を提供するソースAPIのインターフェース。
type Source interface {
	ListNotebooks(ctx context.Context) ([]model.Book, error)
}

// BookBuilder は書籍の付加情報の合流処理のインターフェース。
type BookBuilder interface {
	Build(ctx context.Context, base model.Book) model.Book
}

// ContentBuilder はブロックツリー構築のインターフェース。
type ContentBuilder interface {
	Build(book model.Book) ([]notion.Block, map[int]notion.Block)
}

// Destination は同期先APIのインターフェース。
type Destination interface {
	MaxSort(ctx context.Context) (float64, error)
	QueryByBookID(ctx context.Context, bookID string) ([]string, error)
	DeletePage(ctx context.Context, pageID string) error
	CreatePage(ctx context.Context, page notion.BookPage) (string, error)
	AppendChildren(ctx context.Context, blockID string, blocks []notion.Block) ([]string, error)
}

// CoverValidator はカバー画像URL検証のインターフェース。
type CoverValidator interface {
	ValidateCoverURL(rawURL string) error
}

// Config はSyncerの設定パラメータ。
type Config struct {
	// MaxConcurrency は同時に処理する書籍数の上限（デフォルト: 4）。
	MaxConcurrency int
	// Limit が正の場合、一覧の末尾（最新）からその冊数のみを対象にする。
	// 試運転用。0は全件。
	Limit int
}

// Summary は1回の同期パスの結果を表す。
type Summary struct {
	Synced  int
	Skipped int
	Failed  int
}

// Syncer は同期パス全体のオーケストレータ。
// ウォーターマーク（同期済み最大sort値）を実行開始時に1回だけ読み、
// それ以下のsortを持つ書籍をスキップする。書籍間に共有可変状態はなく、
// 各書籍のパイプラインは1つのワーカー上で最初から最後まで実行される。
type Syncer struct {
	source    Source
	builder   BookBuilder
	content   ContentBuilder
	dest      Destination
	covers    CoverValidator
	collector metrics.SyncCollector
	logger    *slog.Logger
	config    Config
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
// MaxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewSyncer(
	source Source,
	builder BookBuilder,
	content ContentBuilder,
	dest Destination,
	covers CoverValidator,
	collector metrics.SyncCollector,
	logger *slog.Logger,
	config Config,
) *Syncer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	return &Syncer{
		source:    source,
		builder:   builder,
		content:   content,
		dest:      dest,
		covers:    covers,
		collector: collector,
		logger:    logger,
		config:    config,
	}
}

// Start は同期パスをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.config.MaxConcurrency),
	)

	// 起動直後に1回実行
	if _, err := s.Run(ctx); err != nil {
		s.logger.Error("同期パスの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("同期パスの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// Run は1回の同期パスを実行する。
// ウォーターマークと書籍一覧の取得失敗はパス全体の失敗。
// 個々の書籍の失敗はログに残して続行し、Summaryに集計される。
func (s *Syncer) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	// ウォーターマークは実行開始時に1回だけ読む。実行中は再読しない。
	watermark, err := s.dest.MaxSort(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("ウォーターマークの取得に失敗しました: %w", err)
	}
	logger.Info("ウォーターマークを取得しました", slog.Float64("watermark", watermark))

	books, err := s.source.ListNotebooks(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}

	if s.config.Limit > 0 && len(books) > s.config.Limit {
		// 試運転: 一覧はsort昇順なので末尾＝最近更新された書籍
		books = books[len(books)-s.config.Limit:]
		logger.Info("試運転のため対象を制限します", slog.Int("limit", s.config.Limit))
	}

	logger.Info("同期パスを開始します",
		slog.Int("book_count", len(books)),
		slog.Int("max_concurrency", s.config.MaxConcurrency),
	)

	var summary Summary
	var mu sync.Mutex
	sem := make(chan struct{}, s.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, b := range books {
		// スキップ条件はsort <= watermark。ウォーターマークは
		// 「同期済みの最大値」であり、同値の書籍は再処理しない。
		if b.Sort <= watermark {
			logger.Info("同期済みのためスキップします",
				slog.String("book_id", b.ID),
				slog.Float64("sort", b.Sort),
				slog.Float64("watermark", watermark),
			)
			s.collector.RecordBookSkipped()
			summary.Skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(bk model.Book) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			err := s.processBook(ctx, logger, bk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				pipelineErr := model.NewBookPipelineError(bk.ID, bk.Title, err)
				logger.Error("書籍の同期に失敗しました",
					slog.String("book_id", bk.ID),
					slog.String("title", bk.Title),
					slog.String("error", pipelineErr.Error()),
				)
				s.collector.RecordBookFailed()
				summary.Failed++
				return
			}
			s.collector.RecordBookSynced()
			summary.Synced++
		}(b)
	}

	wg.Wait()

	logger.Info("同期パスが完了しました",
		slog.Int("synced", summary.Synced),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return summary, nil
}

// processBook は1冊分のパイプラインを実行する。
// 削除→作成→コンテンツ構築→ブロック追加→入れ子追加の順で、
// ステップは厳密に逐次実行される。途中で失敗した場合のロールバックは
// 行わない。不完全なレコードは次回実行の削除・再作成で解消される。
func (s *Syncer) processBook(ctx context.Context, logger *slog.Logger, base model.Book) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("パイプラインがpanicしました: %v", r)
		}
	}()

	start := time.Now()

	book := s.builder.Build(ctx, base)

	logger.Info("書籍を処理します",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
		slog.Int("bookmark_count", book.BookmarkCount),
	)

	// 既存レコードの削除（再実行を安全にする。0件は正常）
	existing, err := s.dest.QueryByBookID(ctx, book.ID)
	if err != nil {
		return err
	}
	for _, pageID := range existing {
		if err := s.dest.DeletePage(ctx, pageID); err != nil {
			return err
		}
	}
	if len(existing) > 0 {
		logger.Info("既存レコードを削除しました",
			slog.String("book_id", book.ID),
			slog.Int("deleted", len(existing)),
		)
	}

	readerURL, err := weread.ReaderURL(book.ID)
	if err != nil {
		return err
	}

	// カバーURLは外部入力。検証に失敗した場合はカバーなしで続行する
	if book.Cover != "" {
		if coverErr := s.covers.ValidateCoverURL(book.Cover); coverErr != nil {
			logger.Warn("カバーURLの検証に失敗したためカバーなしで同期します",
				slog.String("book_id", book.ID),
				slog.String("cover", book.Cover),
				slog.String("error", coverErr.Error()),
			)
			book.Cover = ""
		}
	}

	pageID, err := s.dest.CreatePage(ctx, notion.BuildBookPage(book, readerURL, time.Now()))
	if err != nil {
		return err
	}

	children, nested := s.content.Build(book)
	if len(children) == 0 {
		logger.Info("追加するコンテンツがありません",
			slog.String("book_id", book.ID),
		)
		s.collector.RecordBookLatency(time.Since(start))
		return nil
	}

	childIDs, err := s.dest.AppendChildren(ctx, pageID, children)
	if err != nil {
		return err
	}
	s.collector.RecordBlocksAppended(len(childIDs))

	for position, block := range nested {
		if position < 0 || position >= len(childIDs) {
			logger.Warn("入れ子ブロックの位置が範囲外です。スキップします",
				slog.String("book_id", book.ID),
				slog.Int("position", position),
				slog.Int("children", len(childIDs)),
			)
			continue
		}
		if _, err := s.dest.AppendChildren(ctx, childIDs[position], []notion.Block{block}); err != nil {
			logger.Warn("入れ子ブロックの追加に失敗しました",
				slog.String("book_id", book.ID),
				slog.Int("position", position),
				slog.String("error", err.Error()),
			)
		}
	}

	s.collector.RecordBookLatency(time.Since(start))
	return nil
}
