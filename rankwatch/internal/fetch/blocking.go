package fetch

import "strings"

// blockPhrases are lower-case markers of an anti-bot or permission page,
// including the Korean forms served by the source.
var blockPhrases = []string{
	"access denied",
	"forbidden",
	"차단",
	"접근",
	"권한이 없습니다",
}

// isBlocked scans body and title, case-insensitively, for a block phrase.
func isBlocked(body, title string) bool {
	content := strings.ToLower(body + " " + title)
	for _, p := range blockPhrases {
		if strings.Contains(content, p) {
			return true
		}
	}
	return false
}

// statusDenied reports whether an HTTP status means access was refused.
func statusDenied(status int) bool {
	return status == 401 || status == 403
}

// classifyStatus builds the error for a main-document status >= 400.
func classifyStatus(url string, status int, contentType, title, body string) *Error {
	e := &Error{
		Kind:        KindHTTPError,
		Message:     "http error",
		URL:         url,
		Status:      status,
		ContentType: contentType,
		Title:       title,
		BodyPrefix:  trimPrefix(body),
	}
	if statusDenied(status) {
		e.Kind = KindBlocked
		e.Message = "access denied"
	}
	return e
}
