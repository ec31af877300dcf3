package xmltree

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ContentDigest computes the TISS integrity hash: the MD5 of every element
// value concatenated in document order, leaving out the hash element itself,
// encoded as ISO-8859-1.
func (n *Node) ContentDigest() string {
	if n == nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur.Name == "hash" {
			return
		}
		sb.WriteString(cur.Text)
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)

	content := sb.String()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	if err != nil {
		encoded = content
	}

	sum := md5.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:])
}
