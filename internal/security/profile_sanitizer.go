// Package security は外部から受け取るデータのサニタイズを提供する。
package security

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxNameRunes は表示名の最大文字数。
	MaxNameRunes = 50
	// MaxPhotoURLLength はプロフィール画像URLの最大長。
	MaxPhotoURLLength = 2048
)

var angleBrackets = strings.NewReplacer("<", " ", ">", " ")

// ProfileSanitizer はIdPから受け取った表示名と画像URLを保存可能な形に整える。
// bluemondayのStrictPolicyで全てのタグを除去する。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// Name は表示名からタグを除去し、空白を正規化して最大文字数に切り詰める。
// 結果が空の場合はfallbackを返す。
func (s *ProfileSanitizer) Name(raw, fallback string) string {
	// エンティティで隠したタグも除去できるよう、先にデコードしてからサニタイズする。
	// StrictPolicyは&などをエスケープするため、保存用に戻す
	cleaned := html.UnescapeString(s.policy.Sanitize(html.UnescapeString(raw)))
	// 戻した結果に残る山括弧はタグとして解釈させない
	cleaned = angleBrackets.Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return fallback
	}
	if utf8.RuneCountInString(cleaned) > MaxNameRunes {
		cleaned = string([]rune(cleaned)[:MaxNameRunes])
	}
	return cleaned
}

// Photo はhttp/httpsの絶対URLのみを受け付ける。それ以外はnilを返す。
func (s *ProfileSanitizer) Photo(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxPhotoURLLength {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	out := u.String()
	return &out
}
