// Package xmltree decodes TISS XML into a namespace-free generic tree.
//
// Every element keeps its children as an ordered slice, so a repeatable
// element looks the same whether the source carried zero, one or many of it.
// Callers look things up with slash separated paths such as
// "cabecalho/identificacaoTransacao/tipoTransacao".
package xmltree

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"golang.org/x/text/encoding/charmap"
)

// Node is one element of the normalized tree.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Repeatable lists the element names that are sequences in the TISS schema.
// ToMap always renders them as []any.
var Repeatable = map[string]bool{
	"guiaSP-SADT":           true,
	"guiaSPSADT":            true,
	"guiaConsulta":          true,
	"guiaHonorarios":        true,
	"guiaResumoInternacao":  true,
	"guiaOdonto":            true,
	"procedimentoExecutado": true,
	"procedimentos":         true,
	"equipeSadt":            true,
	"identEquipe":           true,
	"despesa":               true,
	"medicamento":           true,
	"material":              true,
	"taxa":                  true,
}

// Containers maps a wrapper element to the repeatable children it holds. ToMap
// renders those children as a sequence even when none are present. Guides are
// left out since guiasTISS may hold any of several guide kinds.
var Containers = map[string][]string{
	"procedimentosExecutados": {"procedimentoExecutado"},
	"procedimentoExecutado":   {"equipeSadt"},
	"identificacaoEquipe":     {"identEquipe"},
	"outrasDespesas":          {"despesa"},
	"medicamentos":            {"medicamento"},
	"materiais":               {"material"},
	"taxas":                   {"taxa"},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode reads a whole XML document. Namespace prefixes are dropped from element
// and attribute names and xmlns declarations are discarded. Any decoding
// problem is reported as types.ErrMalformedDocument.
func Decode(r io.Reader) (*Node, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	dec := xml.NewDecoder(br)
	dec.CharsetReader = charsetReader

	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, fmt.Errorf("%w: more than one root element", types.ErrMalformedDocument)
			}
			node := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				if node.Attrs == nil {
					node.Attrs = make(map[string]string, len(t.Attr))
				}
				node.Attrs[a.Name.Local] = a.Value
			}
			stack = append(stack, node)
			texts = append(texts, &strings.Builder{})

		case xml.CharData:
			if len(stack) > 0 {
				texts[len(texts)-1].Write(t)
			}

		case xml.EndElement:
			node := stack[len(stack)-1]
			node.Text = strings.TrimSpace(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]

			if len(stack) == 0 {
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unexpected end of document inside <%s>", types.ErrMalformedDocument, stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", types.ErrMalformedDocument)
	}
	return root, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(b []byte) (*Node, error) {
	return Decode(bytes.NewReader(b))
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "iso8859-1", "iso_8859-1", "latin1", "latin-1", "l1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

// Child returns the first direct child called name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns every direct child called name.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// WithPrefix returns every direct child whose name starts with prefix.
func (n *Node) WithPrefix(prefix string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Find walks a slash separated path of child names. A nil result means some
// step was missing.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, step := range strings.Split(path, "/") {
		if step == "" {
			continue
		}
		cur = cur.Child(step)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// FindAny returns the first path that resolves.
func (n *Node) FindAny(paths ...string) *Node {
	for _, p := range paths {
		if found := n.Find(p); found != nil {
			return found
		}
	}
	return nil
}

// TextAt returns the trimmed text at path, or "".
func (n *Node) TextAt(path string) string {
	found := n.Find(path)
	if found == nil {
		return ""
	}
	return found.Text
}

// FirstText returns the first non-empty text among paths.
func (n *Node) FirstText(paths ...string) string {
	for _, p := range paths {
		if v := n.TextAt(p); v != "" {
			return v
		}
	}
	return ""
}

// Value renders the node as a generic value: a string for plain leaves,
// otherwise a map holding attributes ("@name"), text ("#text") and children.
// Containers are always maps, with their repeatable children present.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	seeded := Containers[n.Name]
	if len(n.Children) == 0 && len(n.Attrs) == 0 && len(seeded) == 0 {
		return n.Text
	}

	m := make(map[string]any, len(n.Children)+len(n.Attrs)+len(seeded)+1)
	for _, name := range seeded {
		m[name] = []any{}
	}
	for k, v := range n.Attrs {
		m["@"+k] = v
	}
	if n.Text != "" {
		m["#text"] = n.Text
	}

	counts := make(map[string]int, len(n.Children))
	for _, c := range n.Children {
		counts[c.Name]++
	}
	for _, c := range n.Children {
		if Repeatable[c.Name] || counts[c.Name] > 1 {
			seq, _ := m[c.Name].([]any)
			m[c.Name] = append(seq, c.Value())
			continue
		}
		m[c.Name] = c.Value()
	}
	return m
}

// ToMap renders the node under its own name.
func (n *Node) ToMap() map[string]any {
	if n == nil {
		return map[string]any{}
	}
	return map[string]any{n.Name: n.Value()}
}
