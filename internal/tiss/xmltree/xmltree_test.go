package xmltree

import (
	"errors"
	"strings"
	"testing"

	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"golang.org/x/text/encoding/charmap"
)

const namespaced = `<?xml version="1.0" encoding="UTF-8"?>
<ans:mensagemTISS xmlns:ans="http://www.ans.gov.br/padroes/tiss/schemas" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <ans:cabecalho>
    <ans:identificacaoTransacao>
      <ans:tipoTransacao>ENVIO_LOTE_GUIAS</ans:tipoTransacao>
      <ans:sequencialTransacao>17</ans:sequencialTransacao>
    </ans:identificacaoTransacao>
  </ans:cabecalho>
  <ans:prestadorParaOperadora>
    <ans:loteGuias>
      <ans:numeroLote>123</ans:numeroLote>
      <ans:guiasTISS>
        <ans:guiaSP-SADT ans:versao="4.01.00">
          <ans:procedimentosExecutados>
            <ans:procedimentoExecutado><ans:sequencialItem>1</ans:sequencialItem></ans:procedimentoExecutado>
          </ans:procedimentosExecutados>
        </ans:guiaSP-SADT>
      </ans:guiasTISS>
    </ans:loteGuias>
  </ans:prestadorParaOperadora>
  <ans:epilogo><ans:hash>abc</ans:hash></ans:epilogo>
</ans:mensagemTISS>`

func TestDecodeStripsNamespacePrefixes(t *testing.T) {
	root, err := Decode(strings.NewReader(namespaced))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if root.Name != "mensagemTISS" {
		t.Errorf("expected root mensagemTISS, got %q", root.Name)
	}
	if got := root.TextAt("cabecalho/identificacaoTransacao/tipoTransacao"); got != "ENVIO_LOTE_GUIAS" {
		t.Errorf("unexpected transaction type %q", got)
	}
	if len(root.Attrs) != 0 {
		t.Errorf("expected xmlns declarations to be dropped, got %v", root.Attrs)
	}

	guide := root.Find("prestadorParaOperadora/loteGuias/guiasTISS/guiaSP-SADT")
	if guide == nil {
		t.Fatal("expected to find the guide")
	}
	if guide.Attrs["versao"] != "4.01.00" {
		t.Errorf("expected prefixed attribute to be stripped, got %v", guide.Attrs)
	}
}

func TestDecodeUndeclaredPrefix(t *testing.T) {
	root, err := Decode(strings.NewReader(`<ans:a><ans:b>x</ans:b></ans:a>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Name != "a" || root.TextAt("b") != "x" {
		t.Errorf("unexpected tree: %+v", root)
	}
}

func TestToMapAlwaysUsesSequencesForRepeatables(t *testing.T) {
	root, err := Decode(strings.NewReader(namespaced))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := root.ToMap()
	lote := m["mensagemTISS"].(map[string]any)["prestadorParaOperadora"].(map[string]any)["loteGuias"].(map[string]any)
	guias := lote["guiasTISS"].(map[string]any)

	seq, ok := guias["guiaSP-SADT"].([]any)
	if !ok {
		t.Fatalf("expected a single guide to be rendered as a sequence, got %T", guias["guiaSP-SADT"])
	}
	if len(seq) != 1 {
		t.Fatalf("expected 1 guide, got %d", len(seq))
	}

	procs := seq[0].(map[string]any)["procedimentosExecutados"].(map[string]any)
	if _, ok := procs["procedimentoExecutado"].([]any); !ok {
		t.Errorf("expected procedimentoExecutado to be a sequence, got %T", procs["procedimentoExecutado"])
	}

	if lote["numeroLote"] != "123" {
		t.Errorf("expected scalar leaf, got %v", lote["numeroLote"])
	}
}

func TestToMapEmptyContainers(t *testing.T) {
	root, err := Decode(strings.NewReader(`<guia><procedimentosExecutados/><outrasDespesas></outrasDespesas></guia>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	guide := root.ToMap()["guia"].(map[string]any)
	procs, ok := guide["procedimentosExecutados"].(map[string]any)
	if !ok {
		t.Fatalf("expected empty container to be a map, got %T", guide["procedimentosExecutados"])
	}
	if seq, ok := procs["procedimentoExecutado"].([]any); !ok || len(seq) != 0 {
		t.Errorf("expected empty procedimentoExecutado sequence, got %#v", procs["procedimentoExecutado"])
	}
	expenses := guide["outrasDespesas"].(map[string]any)
	if seq, ok := expenses["despesa"].([]any); !ok || len(seq) != 0 {
		t.Errorf("expected empty despesa sequence, got %#v", expenses["despesa"])
	}
}

func TestTextFieldAndPathLookup(t *testing.T) {
	root, err := Decode(strings.NewReader(`<a> top <b><c> deep </c></b></a>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Text != "top" {
		t.Errorf("expected own text %q, got %q", "top", root.Text)
	}
	if got := root.TextAt("b/c"); got != "deep" {
		t.Errorf("expected path text %q, got %q", "deep", got)
	}
	if got := root.TextAt("b/missing"); got != "" {
		t.Errorf("expected empty text for missing path, got %q", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated":  `<a><b>1</b>`,
		"mismatched": `<a><b>1</c></a>`,
		"empty":      ``,
		"two roots":  `<a/><b/>`,
		"garbage":    `not xml at all`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			if !errors.Is(err, types.ErrMalformedDocument) {
				t.Errorf("expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestDecodeLatin1(t *testing.T) {
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?><a><nome>JOÃO ÇÉSAR</nome></a>`
	encoded, err := charmap.ISO8859_1.NewEncoder().String(doc)
	if err != nil {
		t.Fatal(err)
	}

	root, err := DecodeBytes([]byte(encoded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := root.TextAt("nome"); got != "JOÃO ÇÉSAR" {
		t.Errorf("expected latin1 text to be decoded, got %q", got)
	}
}

func TestDecodeSkipsBOM(t *testing.T) {
	root, err := DecodeBytes(append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<a>1</a>`)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.TextAt("") != "1" {
		t.Errorf("unexpected root text %q", root.TextAt(""))
	}
}

func TestNilSafeLookups(t *testing.T) {
	var n *Node
	if n.Child("x") != nil || n.Find("a/b") != nil || n.TextAt("a") != "" || len(n.All("x")) != 0 {
		t.Error("expected nil receiver lookups to be empty")
	}

	root, _ := Decode(strings.NewReader(`<a><b><c>v</c></b></a>`))
	if got := root.FirstText("x/y", "b/c"); got != "v" {
		t.Errorf("expected fallback path to resolve, got %q", got)
	}
	if root.FindAny("nope", "b") == nil {
		t.Error("expected FindAny to resolve b")
	}
}

func TestContentDigestIgnoresHashElement(t *testing.T) {
	a, _ := Decode(strings.NewReader(`<m><x>1</x><y>2</y><epilogo><hash>aaa</hash></epilogo></m>`))
	b, _ := Decode(strings.NewReader(`<m><x>1</x><y>2</y><epilogo><hash>bbb</hash></epilogo></m>`))
	c, _ := Decode(strings.NewReader(`<m><x>1</x><y>3</y><epilogo><hash>aaa</hash></epilogo></m>`))

	if a.ContentDigest() != b.ContentDigest() {
		t.Error("expected digest to ignore the hash value")
	}
	if a.ContentDigest() == c.ContentDigest() {
		t.Error("expected digest to change with content")
	}
	// md5("12")
	if got := a.ContentDigest(); got != "c20ad4d76fe97759aa27a0c99bff6710" {
		t.Errorf("unexpected digest %s", got)
	}
}
