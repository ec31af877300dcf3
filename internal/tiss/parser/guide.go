package parser

import (
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
	"github.com/farxc/tiss_wrapper/internal/tiss/xmltree"
)

func parseGuide(g *xmltree.Node, label string, gc *gapCollector) types.Guide {
	guide := types.Guide{
		Header:        parseGuideHeader(gc.need(g, "cabecalhoGuia", label+"/cabecalhoGuia")),
		Authorization: parseAuthorization(g.Child("dadosAutorizacao")),
		Beneficiary:   parseBeneficiary(gc.need(g, "dadosBeneficiario", label+"/dadosBeneficiario")),
		Requester:     parseRequester(g.Child("dadosSolicitante")),
		Request:       parseClinicalRequest(g.Child("dadosSolicitacao")),
		Executor:      parseExecutor(gc.need(g, "dadosExecutante", label+"/dadosExecutante")),
		Attendance:    parseAttendance(g.Child("dadosAtendimento")),
		Totals:        parseTotals(g.Child("valorTotal")),
		Observation:   g.FirstText("observacao", "observacaoJustificativa"),
	}

	guide.Procedures = parseProcedures(g)
	guide.Expenses = parseExpenses(g)
	return guide
}

func parseGuideHeader(n *xmltree.Node) *types.GuideHeader {
	if n == nil {
		return nil
	}
	return &types.GuideHeader{
		OperatorRegistry:    n.TextAt("registroANS"),
		ProviderGuideNumber: n.TextAt("numeroGuiaPrestador"),
		MainGuideNumber:     n.FirstText("guiaPrincipal", "numeroGuiaPrincipal"),
	}
}

func parseAuthorization(n *xmltree.Node) *types.Authorization {
	if n == nil {
		return nil
	}
	return &types.Authorization{
		OperatorGuideNumber: n.TextAt("numeroGuiaOperadora"),
		Date:                n.TextAt("dataAutorizacao"),
		Password:            n.TextAt("senha"),
		PasswordValidity:    n.TextAt("dataValidadeSenha"),
	}
}

func parseBeneficiary(n *xmltree.Node) *types.Beneficiary {
	if n == nil {
		return nil
	}
	return &types.Beneficiary{
		CardNumber: n.TextAt("numeroCarteira"),
		Name:       n.FirstText("nomeBeneficiario", "nomeSocialBeneficiario"),
		Newborn:    n.TextAt("atendimentoRN"),
		CNS:        n.FirstText("numeroCNS", "cartaoNacionalSaude"),
	}
}

func parseRequester(n *xmltree.Node) *types.Requester {
	if n == nil {
		return nil
	}
	contracted := n.FindAny("contratadoSolicitante", "identificacaoSolicitante")
	return &types.Requester{
		ProviderCode: contracted.TextAt("codigoPrestadorNaOperadora"),
		ProviderCNPJ: contracted.FirstText("cnpjContratado", "CNPJ"),
		ProviderName: n.FirstText("nomeContratadoSolicitante", "contratadoSolicitante/nomeContratado"),
		Professional: parseProfessional(n.FindAny("profissionalSolicitante", "profissional")),
	}
}

// parseProfessional reads the identity fields shared by the requesting
// professional and the execution team.
func parseProfessional(n *xmltree.Node) *types.Professional {
	if n == nil {
		return nil
	}
	return &types.Professional{
		Name:          n.FirstText("nomeProfissional", "nomeProf"),
		Council:       n.TextAt("conselhoProfissional"),
		CouncilNumber: n.TextAt("numeroConselhoProfissional"),
		State:         n.FirstText("UF", "uf"),
		CBOS:          n.FirstText("CBOS", "cbos"),
	}
}

func parseClinicalRequest(n *xmltree.Node) *types.ClinicalRequest {
	if n == nil {
		return nil
	}
	return &types.ClinicalRequest{
		Date:               n.TextAt("dataSolicitacao"),
		CareCharacter:      n.TextAt("caraterAtendimento"),
		ClinicalIndication: n.TextAt("indicacaoClinica"),
	}
}

func parseExecutor(n *xmltree.Node) *types.Executor {
	if n == nil {
		return nil
	}
	contracted := n.FindAny("contratadoExecutante", "identificacaoExecutante")
	return &types.Executor{
		ProviderCode: contracted.TextAt("codigoPrestadorNaOperadora"),
		ProviderCNPJ: contracted.FirstText("cnpjContratado", "CNPJ"),
		ProviderName: n.FirstText("contratadoExecutante/nomeContratado", "nomeContratadoExecutante"),
		CNES:         n.FirstText("CNES", "contratadoExecutante/CNES"),
	}
}

func parseAttendance(n *xmltree.Node) *types.Attendance {
	if n == nil {
		return nil
	}
	return &types.Attendance{
		Type:               n.TextAt("tipoAtendimento"),
		AccidentIndication: n.TextAt("indicacaoAcidente"),
		ConsultationType:   n.TextAt("tipoConsulta"),
		ClosureReason:      n.TextAt("motivoEncerramento"),
		Regime:             n.TextAt("regimeAtendimento"),
		OccupationalHealth: n.TextAt("saudeOcupacional"),
	}
}

// parseTotals always returns a value; an absent valorTotal is all zeros.
func parseTotals(n *xmltree.Node) types.Totals {
	return types.Totals{
		Procedures:   utils.ParseDecimal(n.TextAt("valorProcedimentos")),
		DailyRates:   utils.ParseDecimal(n.TextAt("valorDiarias")),
		FeesRentals:  utils.ParseDecimal(n.TextAt("valorTaxasAlugueis")),
		Materials:    utils.ParseDecimal(n.TextAt("valorMateriais")),
		Medications:  utils.ParseDecimal(n.TextAt("valorMedicamentos")),
		OPME:         utils.ParseDecimal(n.TextAt("valorOPME")),
		MedicalGases: utils.ParseDecimal(n.TextAt("valorGasesMedicinais")),
		Grand:        utils.ParseDecimal(n.TextAt("valorTotalGeral")),
	}
}
