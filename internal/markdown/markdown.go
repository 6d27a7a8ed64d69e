// Package markdown renders the markdown_body companion of outbound
// messages. The plain-text body carried on SendRoomMessage/EditMessage
// is never derived from this package; it is formatted independently by
// the issuing middleware and this package only supplies the richer
// counterpart for services that can render it.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// ToHTML renders md (CommonMark) to an HTML fragment. It has no
// external resources and no head/body wrapper; callers that need a
// full document build one around the returned fragment.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
