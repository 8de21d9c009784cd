package export

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// GroupURL builds the shareable link for one group.
func GroupURL(baseURL, groupID string) string {
	return fmt.Sprintf("%s/groups/%s", strings.TrimRight(baseURL, "/"), groupID)
}

// GroupQR renders the group's share link as a PNG.
func GroupQR(baseURL, groupID string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(GroupURL(baseURL, groupID), qrcode.Medium, size)
}
