// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は通知メールのHTML本文をサニタイズする。
// 活動通知には利用者が入力した氏名が含まれるため、本文に埋め込む前に
// マークアップを除去し、組み立て後の本文も許可リストで再検査する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はメール本文のHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, b, strong, em, ul, ol, li, a）のみを通過させる。
	// aタグのhref属性はhttpsスキームのみ許可され、target="_blank"と
	// rel="noopener noreferrer"が自動付与される。
	Sanitize(rawHTML string) string

	// StripTags はすべてのタグを除去し、HTMLとして安全なテキストを返す。
	// 氏名などの利用者入力をHTMLに埋め込む前に使用する。
	StripTags(text string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "b", "strong", "em",
		"ul", "ol", "li",
	)

	// リンクは絶対URLのhttpsのみ
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags はすべてのタグを除去する。
func (s *contentSanitizer) StripTags(text string) string {
	return s.strict.Sanitize(text)
}
