// Package parser turns a normalized TISS tree into a types.Document.
//
// Parsing never fails on missing data. Absent optional blocks become nil
// pointers or zero values, and every expected block that was not found is
// recorded in Document.Gaps.
package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
	"github.com/farxc/tiss_wrapper/internal/tiss/xmltree"
)

const (
	pathHeader      = "cabecalho"
	pathTransaction = "cabecalho/identificacaoTransacao"
	pathBatch       = "prestadorParaOperadora/loteGuias"
	pathGuides      = "prestadorParaOperadora/loteGuias/guiasTISS"
	pathEpilogue    = "epilogo"
)

// gapCollector records the expected nodes that were missing.
type gapCollector struct {
	gaps []types.ValidationGap
}

// need returns the node at path under n, noting a gap named label when absent.
func (c *gapCollector) need(n *xmltree.Node, path, label string) *xmltree.Node {
	found := n.Find(path)
	if found == nil {
		c.gaps = append(c.gaps, types.ValidationGap{Path: label})
	}
	return found
}

// ParseFile reads and parses a TISS document from disk.
func ParseFile(path string) (*types.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(f)
}

func ParseReader(r io.Reader) (*types.Document, error) {
	root, err := xmltree.Decode(r)
	if err != nil {
		return nil, err
	}
	return Parse(root), nil
}

func ParseBytes(b []byte) (*types.Document, error) {
	root, err := xmltree.DecodeBytes(b)
	if err != nil {
		return nil, err
	}
	return Parse(root), nil
}

// Parse extracts the document from a decoded mensagemTISS root.
func Parse(root *xmltree.Node) *types.Document {
	gc := &gapCollector{}
	doc := &types.Document{}

	header := gc.need(root, pathHeader, pathHeader)
	doc.Header = parseHeader(header, gc)

	doc.Operator = types.OperatorIdentity{
		RegistryID: doc.Header.OperatorRegistry,
		Name:       header.FirstText("destino/nomeOperadora", "destino/nomeOperadoraDestino"),
	}

	doc.Hash, doc.HashSource = resolveHash(root)
	doc.ComputedHash = root.ContentDigest()

	batch := gc.need(root, pathBatch, pathBatch)
	guideNodes := guideNodes(batch)
	if batch != nil && len(guideNodes) == 0 {
		gc.gaps = append(gc.gaps, types.ValidationGap{Path: pathGuides})
	}

	doc.Guides = make([]types.Guide, 0, len(guideNodes))
	for i, g := range guideNodes {
		doc.Guides = append(doc.Guides, parseGuide(g, fmt.Sprintf("guia[%d]", i), gc))
	}

	doc.Batch = parseBatch(batch, doc)
	fillProviderFromGuides(doc)

	doc.Gaps = gc.gaps
	return doc
}

func parseHeader(h *xmltree.Node, gc *gapCollector) types.TransactionHeader {
	if h == nil {
		return types.TransactionHeader{}
	}
	gc.need(h, "identificacaoTransacao", pathTransaction)
	gc.need(h, "destino/registroANS", "cabecalho/destino/registroANS")

	return types.TransactionHeader{
		TransactionType:  h.TextAt("identificacaoTransacao/tipoTransacao"),
		Sequence:         h.TextAt("identificacaoTransacao/sequencialTransacao"),
		RegistrationDate: h.TextAt("identificacaoTransacao/dataRegistroTransacao"),
		RegistrationTime: h.TextAt("identificacaoTransacao/horaRegistroTransacao"),
		ProviderCNPJ: h.FirstText(
			"origem/identificacaoPrestador/CNPJ",
			"origem/identificacaoPrestador/cnpjContratado",
			"origem/identificacaoPrestador/codigoPrestadorNaOperadora/cnpjContratado",
		),
		ProviderCode: h.FirstText(
			"origem/identificacaoPrestador/codigoPrestadorNaOperadora",
			"origem/codigoPrestadorNaOperadora",
		),
		ProviderName: h.FirstText(
			"origem/identificacaoPrestador/nomeContratado",
			"origem/nomePrestador",
			"origem/nomeContratado",
		),
		ProviderCNES: h.FirstText(
			"origem/identificacaoPrestador/CNES",
			"origem/CNES",
		),
		OperatorRegistry: h.TextAt("destino/registroANS"),
		SchemaVersion:    h.FirstText("Padrao", "versaoPadrao", "padrao"),
		Hash:             h.TextAt("hash"),
	}
}

// resolveHash prefers the epilogue hash, then the header hash.
func resolveHash(root *xmltree.Node) (string, types.HashSource) {
	if h := root.TextAt(pathEpilogue + "/hash"); h != "" {
		return h, types.HashFromEpilogue
	}
	if h := root.TextAt(pathHeader + "/hash"); h != "" {
		return h, types.HashFromHeader
	}
	return "", types.HashAbsent
}

// guideNodes returns the guides of a loteGuias. Older revisions put the guides
// straight under loteGuias instead of guiasTISS.
func guideNodes(batch *xmltree.Node) []*xmltree.Node {
	if batch == nil {
		return []*xmltree.Node{}
	}
	if wrapper := batch.Child("guiasTISS"); wrapper != nil {
		if guides := wrapper.WithPrefix("guia"); len(guides) > 0 {
			return guides
		}
	}
	var out []*xmltree.Node
	for _, c := range batch.WithPrefix("guia") {
		if c.Name != "guiasTISS" {
			out = append(out, c)
		}
	}
	if out == nil {
		return []*xmltree.Node{}
	}
	return out
}

func parseBatch(batch *xmltree.Node, doc *types.Document) types.BatchInfo {
	info := types.BatchInfo{
		Number:             batch.TextAt("numeroLote"),
		SubmissionDate:     doc.Header.RegistrationDate,
		DeclaredGuideCount: len(doc.Guides),
	}

	info.Competence = batch.FirstText("competencia", "competenciaLote")
	if info.Competence == "" {
		info.Competence = utils.Competence(doc.Header.RegistrationDate)
	}

	if declared := batch.FirstText("valorTotalLote", "valorTotal"); declared != "" {
		info.DeclaredTotal = utils.ParseDecimal(declared)
	} else {
		var sum float64
		for _, g := range doc.Guides {
			sum += g.Totals.Grand
		}
		info.DeclaredTotal = utils.Round2(sum)
	}
	return info
}

// fillProviderFromGuides uses the first executing party when the header does
// not name the provider.
func fillProviderFromGuides(doc *types.Document) {
	for _, g := range doc.Guides {
		if g.Executor == nil {
			continue
		}
		if doc.Header.ProviderCNPJ == "" {
			doc.Header.ProviderCNPJ = g.Executor.ProviderCNPJ
		}
		if doc.Header.ProviderName == "" {
			doc.Header.ProviderName = g.Executor.ProviderName
		}
		if doc.Header.ProviderCNES == "" {
			doc.Header.ProviderCNES = g.Executor.CNES
		}
		return
	}
}
