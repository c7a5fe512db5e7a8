package weread

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// readerBaseURL はWeRead Webリーダーのディープリンクのベース。
const readerBaseURL = "https://weread.qq.com/web/reader/"

// EncodeBookID は書籍IDをWebリーダーURLで使う文字列IDに変換する。
// 決定的な変換であり、出力はWeReadのディープリンク仕様とビット単位で
// 一致しなければならない（小文字16進 + リテラル "g","2","3","4" のみ）。
// 空のIDは呼び出し側の契約違反としてエラーを返す。
func EncodeBookID(bookID string) (string, error) {
	if bookID == "" {
		return "", fmt.Errorf("book id must not be empty")
	}

	sum := md5.Sum([]byte(bookID))
	digest := hex.EncodeToString(sum[:])

	result := digest[:3]
	code, chunks := transformBookID(bookID)
	result += code + "2" + digest[len(digest)-2:]

	for i, chunk := range chunks {
		// チャンク長を2桁ゼロ埋めの16進で前置する
		result += fmt.Sprintf("%02x", len(chunk)) + chunk
		if i < len(chunks)-1 {
			result += "g"
		}
	}

	// 20文字に満たない場合はダイジェスト先頭から補う
	if len(result) < 20 {
		result += digest[:20-len(result)]
	}

	check := md5.Sum([]byte(result))
	result += hex.EncodeToString(check[:])[:3]

	return result, nil
}

// ReaderURL は書籍IDからWebリーダーのディープリンクURLを構築する。
func ReaderURL(bookID string) (string, error) {
	encoded, err := EncodeBookID(bookID)
	if err != nil {
		return "", err
	}
	return readerBaseURL + encoded, nil
}

// transformBookID は書籍IDを16進表現のチャンク列と変換コードに変換する。
// ASCII数字のみのIDは9桁ごとに10進値を16進化する（コード"3"）。
// それ以外は各文字のコードポイントを16進化して連結した1チャンクとする（コード"4"）。
func transformBookID(bookID string) (string, []string) {
	if isASCIIDigits(bookID) {
		var chunks []string
		for i := 0; i < len(bookID); i += 9 {
			end := i + 9
			if end > len(bookID) {
				end = len(bookID)
			}
			n, _ := strconv.ParseUint(bookID[i:end], 10, 64)
			chunks = append(chunks, strconv.FormatUint(n, 16))
		}
		return "3", chunks
	}

	var b strings.Builder
	for _, r := range bookID {
		b.WriteString(strconv.FormatInt(int64(r), 16))
	}
	return "4", []string{b.String()}
}

// isASCIIDigits は文字列がASCII数字のみで構成されるかを返す。
func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
