package message

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText はHTML本文からメールのテキストパートを生成する。
// リスト項目は "- " で始まる行になり、それ以外のタグは取り除かれる。
func PlainText(htmlBody string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(htmlBody))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "li":
				b.WriteString("\n- ")
			case "br", "p":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "ul" || string(name) == "ol" {
				b.WriteString("\n")
			}
		}
	}
}
