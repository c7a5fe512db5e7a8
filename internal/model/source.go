// Package model はドメインモデルを定義する。
package model

// BookInfo はソースAPIのbook infoエンドポイントが返す付加情報。
type BookInfo struct {
	ISBN string
	// NewRating は生のレーティング値。1000で割って0.0〜10.0に正規化する。
	NewRating int
}

// Rating はNewRatingを0.0〜10.0スケールに正規化した値を返す。
func (i BookInfo) Rating() float64 {
	return float64(i.NewRating) / 1000
}

// ReadInfo はソースAPIの読書進捗エンドポイントが返す情報。
type ReadInfo struct {
	MarkedStatus int
	ReadingTime  int // 秒
	FinishedDate *int64
}
